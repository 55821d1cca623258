package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/identity"
	"github.com/courierhq/courier/pkg/schema"
)

func init() {
	rootCmd.AddCommand(noteCmd)

	noteCmd.Flags().String("workflow", "", "workflow ID (required)")
	noteCmd.Flags().String("agent", "", "authoring agent ID (required)")
	noteCmd.Flags().String("category", "", "note category (required)")
	noteCmd.Flags().String("title", "", "note title (required)")
	noteCmd.Flags().String("content", "", "note content (required)")
	noteCmd.Flags().StringSlice("tag", nil, "tag (repeatable)")
	noteCmd.Flags().String("related-file", "", "file path the note refers to")
	noteCmd.Flags().String("related-feature", "", "feature the note refers to")
	_ = noteCmd.MarkFlagRequired("workflow")
	_ = noteCmd.MarkFlagRequired("agent")
	_ = noteCmd.MarkFlagRequired("category")
	_ = noteCmd.MarkFlagRequired("title")
	_ = noteCmd.MarkFlagRequired("content")
}

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Record a note in the workflow's shared log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		workflowID, _ := cmd.Flags().GetString("workflow")
		agentID, _ := cmd.Flags().GetString("agent")
		category, _ := cmd.Flags().GetString("category")
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		relatedFile, _ := cmd.Flags().GetString("related-file")
		relatedFeature, _ := cmd.Flags().GetString("related-feature")

		eventType := schema.NoteEventType(category)
		if !schema.KnownEventType(eventType) {
			return fmt.Errorf("unknown note category %q", category)
		}

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		if _, err := identity.EnsureRegistered(ctx, log.Store(), agentID, agentID, identity.AgentTypeLLM, nil); err != nil {
			return fmt.Errorf("register agent: %w", err)
		}

		payload := schema.NotePayload{
			AgentID:        agentID,
			Title:          title,
			Content:        content,
			Tags:           tags,
			RelatedFile:    relatedFile,
			RelatedFeature: relatedFeature,
		}
		if err := appendEvent(ctx, log, workflowID, eventType, agentID, payload); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Recorded %s note in %s\n", category, workflowID)
		return nil
	},
}
