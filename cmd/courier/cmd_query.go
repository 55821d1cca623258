package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/filter"
	"github.com/courierhq/courier/internal/projection"
	"github.com/courierhq/courier/internal/store"
)

func init() {
	rootCmd.AddCommand(inboxCmd, outboxCmd, conversationCmd, notesCmd, eventsCmd)

	inboxCmd.Flags().Bool("unread", false, "only unacknowledged messages, priority-ordered")
	outboxCmd.Flags().Bool("pending", false, "only messages not yet completed")

	notesCmd.Flags().String("category", "", "only notes of this category")
	notesCmd.Flags().String("agent", "", "only notes by this agent")
	notesCmd.Flags().String("tag", "", "only notes carrying this tag")

	eventsCmd.Flags().String("type", "", "only events of this type")
	eventsCmd.Flags().String("order", "", `sequence order: "asc" or "desc"`)
	eventsCmd.Flags().Int("limit", 0, "maximum number of events")
	eventsCmd.Flags().Int("offset", 0, "events to skip")
	eventsCmd.Flags().Int64("since", 0, "only events after this sequence number")
	eventsCmd.Flags().String("filter", "", "filter expression (expr default, cel:/jq: prefixes)")
}

var inboxCmd = &cobra.Command{
	Use:   "inbox <workflow-id> <agent-id>",
	Short: "Show an agent's inbox for a workflow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		state, err := projection.RebuildFromSnapshot(ctx, log, args[0], projection.NewMailboxBuilder(args[1]))
		if err != nil {
			return err
		}

		inbox := state.Inbox
		if unread, _ := cmd.Flags().GetBool("unread"); unread {
			inbox = projection.UnreadInbox(state)
		}
		if inbox == nil {
			inbox = []projection.InboxMessage{}
		}
		return printJSON(inbox)
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox <workflow-id> <agent-id>",
	Short: "Show an agent's outbox for a workflow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		state, err := projection.RebuildFromSnapshot(ctx, log, args[0], projection.NewMailboxBuilder(args[1]))
		if err != nil {
			return err
		}

		outbox := state.Outbox
		if pending, _ := cmd.Flags().GetBool("pending"); pending {
			outbox = projection.PendingOutbox(state)
		}
		if outbox == nil {
			outbox = []projection.OutboxMessage{}
		}
		return printJSON(outbox)
	},
}

var conversationCmd = &cobra.Command{
	Use:   "conversation <workflow-id> <agent-id> [with-agent]",
	Short: "Show completed exchanges, ordered by completion time",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		state, err := projection.RebuildFromSnapshot(ctx, log, args[0], projection.NewMailboxBuilder(args[1]))
		if err != nil {
			return err
		}

		withAgent := ""
		if len(args) == 3 {
			withAgent = args[2]
		}
		conversation := projection.Conversation(state, withAgent)
		if conversation == nil {
			conversation = []projection.OutboxMessage{}
		}
		return printJSON(conversation)
	},
}

var notesCmd = &cobra.Command{
	Use:   "notes <workflow-id>",
	Short: "Browse a workflow's recorded notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		state, err := projection.RebuildFromSnapshot(ctx, log, args[0], projection.NewNotesBuilder())
		if err != nil {
			return err
		}

		notes := state.Notes
		category, _ := cmd.Flags().GetString("category")
		agent, _ := cmd.Flags().GetString("agent")
		tag, _ := cmd.Flags().GetString("tag")
		switch {
		case category != "":
			notes = projection.NotesInCategory(state, category)
		case agent != "":
			notes = projection.NotesByAgent(state, agent)
		case tag != "":
			notes = projection.NotesWithTag(state, tag)
		}
		if notes == nil {
			notes = []projection.Note{}
		}
		return printJSON(notes)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <workflow-id>",
	Short: "Show a workflow's raw event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		q := store.EventQuery{}
		q.Type, _ = cmd.Flags().GetString("type")
		q.Order, _ = cmd.Flags().GetString("order")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Offset, _ = cmd.Flags().GetInt("offset")
		q.Since, _ = cmd.Flags().GetInt64("since")

		events, err := log.GetEvents(ctx, args[0], q)
		if err != nil {
			return err
		}

		if expression, _ := cmd.Flags().GetString("filter"); expression != "" {
			matcher, err := filter.NewMatcher()
			if err != nil {
				return fmt.Errorf("create filter matcher: %w", err)
			}
			if err := matcher.Check(expression); err != nil {
				return err
			}
			filtered := events[:0:0]
			for _, e := range events {
				matched, matchErr := matcher.Match(ctx, expression, eventDoc(e))
				if matchErr == nil && matched {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}
		if events == nil {
			events = []*store.Event{}
		}
		return printJSON(events)
	},
}

// eventDoc builds the flat filter document for a stored event.
func eventDoc(e *store.Event) map[string]any {
	var payload any
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &payload)
	}
	return map[string]any{
		"workflow_id": e.WorkflowID,
		"event_type":  e.Type,
		"agent_id":    e.AgentID,
		"sequence":    e.Sequence,
		"timestamp":   e.Timestamp.Format(time.RFC3339Nano),
		"payload":     payload,
	}
}
