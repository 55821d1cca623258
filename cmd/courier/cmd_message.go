package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/identity"
	"github.com/courierhq/courier/pkg/schema"
)

func init() {
	rootCmd.AddCommand(sendCmd, ackCmd, completeCmd)

	sendCmd.Flags().String("workflow", "", "workflow ID (required)")
	sendCmd.Flags().String("from", "", "sending agent ID (required)")
	sendCmd.Flags().String("to", "", "receiving agent ID (required)")
	sendCmd.Flags().String("subject", "", "message subject")
	sendCmd.Flags().String("body", "", "message body")
	sendCmd.Flags().String("priority", "normal", "priority: low, normal, high, urgent")
	_ = sendCmd.MarkFlagRequired("workflow")
	_ = sendCmd.MarkFlagRequired("from")
	_ = sendCmd.MarkFlagRequired("to")

	ackCmd.Flags().String("workflow", "", "workflow ID (required)")
	ackCmd.Flags().String("message", "", "message ID to acknowledge (required)")
	ackCmd.Flags().String("by", "", "acknowledging agent ID (required)")
	_ = ackCmd.MarkFlagRequired("workflow")
	_ = ackCmd.MarkFlagRequired("message")
	_ = ackCmd.MarkFlagRequired("by")

	completeCmd.Flags().String("workflow", "", "workflow ID (required)")
	completeCmd.Flags().String("message", "", "completed message ID (required)")
	completeCmd.Flags().String("result", "", "outcome summary")
	completeCmd.Flags().Bool("success", true, "whether the work succeeded")
	_ = completeCmd.MarkFlagRequired("workflow")
	_ = completeCmd.MarkFlagRequired("message")
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to another agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		workflowID, _ := cmd.Flags().GetString("workflow")
		fromAgent, _ := cmd.Flags().GetString("from")
		toAgent, _ := cmd.Flags().GetString("to")
		subject, _ := cmd.Flags().GetString("subject")
		body, _ := cmd.Flags().GetString("body")
		priorityStr, _ := cmd.Flags().GetString("priority")

		priority := schema.Priority(priorityStr)
		if !priority.Valid() {
			return fmt.Errorf("invalid priority %q: must be low, normal, high, or urgent", priorityStr)
		}

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		if _, err := identity.EnsureRegistered(ctx, log.Store(), fromAgent, fromAgent, identity.AgentTypeLLM, nil); err != nil {
			return fmt.Errorf("register agent: %w", err)
		}

		now := time.Now().UTC()
		messageID := identity.NewMessageID()
		payload := schema.MessageSentPayload{
			EventID: identity.NewMessageID(),
			Message: &schema.AgentMessage{
				MessageID: messageID,
				FromAgent: fromAgent,
				ToAgent:   toAgent,
				Subject:   subject,
				Body:      body,
				Priority:  priority,
				CreatedAt: now,
			},
			SentAt: now,
		}
		if err := appendEvent(ctx, log, workflowID, schema.EventMessageSent, fromAgent, payload); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, messageID)
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Acknowledge receipt of a message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		workflowID, _ := cmd.Flags().GetString("workflow")
		messageID, _ := cmd.Flags().GetString("message")
		acknowledgedBy, _ := cmd.Flags().GetString("by")

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		if _, err := identity.EnsureRegistered(ctx, log.Store(), acknowledgedBy, acknowledgedBy, identity.AgentTypeLLM, nil); err != nil {
			return fmt.Errorf("register agent: %w", err)
		}

		payload := schema.MessageAckPayload{
			CorrelationID:  messageID,
			AcknowledgedBy: acknowledgedBy,
			AcknowledgedAt: time.Now().UTC(),
		}
		if err := appendEvent(ctx, log, workflowID, schema.EventMessageAcknowledged, acknowledgedBy, payload); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Acknowledged %s\n", messageID)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Mark a message's requested work as completed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		workflowID, _ := cmd.Flags().GetString("workflow")
		messageID, _ := cmd.Flags().GetString("message")
		result, _ := cmd.Flags().GetString("result")
		success, _ := cmd.Flags().GetBool("success")

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		payload := schema.MessageCompletedPayload{
			CorrelationID: messageID,
			Result:        result,
			Success:       success,
			CompletedAt:   time.Now().UTC(),
		}
		if err := appendEvent(ctx, log, workflowID, schema.EventMessageCompleted, "", payload); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Completed %s\n", messageID)
		return nil
	},
}
