package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/projection"
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().Bool("all", false, "snapshot every workflow")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [workflow-id]",
	Short: "Write a projection snapshot for faster rebuilds",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("provide a workflow ID or --all")
		}

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		workflowIDs := args
		if all {
			workflowIDs, err = log.ListWorkflowIDs(ctx)
			if err != nil {
				return err
			}
		}

		for _, workflowID := range workflowIDs {
			snap, err := projection.SnapshotNow(ctx, log, workflowID, projection.NewNotesBuilder())
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", workflowID, err)
			}
			if snap == nil {
				fmt.Fprintf(os.Stdout, "%s: nothing to snapshot\n", workflowID)
				continue
			}
			fmt.Fprintf(os.Stdout, "%s: snapshot at sequence %d\n", workflowID, snap.EventSequence)
		}
		return nil
	},
}
