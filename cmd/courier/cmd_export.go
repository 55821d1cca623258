package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/export"
)

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)

	exportCmd.Flags().String("out", "", "output file (default stdout)")
	importCmd.Flags().String("in", "", "input file (default stdin)")
}

var exportCmd = &cobra.Command{
	Use:   "export [workflow-id]",
	Short: "Export events as JSON Lines",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		var written int
		if len(args) == 1 {
			written, err = export.Workflow(ctx, log, args[0], out)
		} else {
			written, err = export.All(ctx, log, out)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d events\n", written)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import events from JSON Lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)
		ctx := cmd.Context()

		log, closeStore, err := openLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		in := os.Stdin
		if path, _ := cmd.Flags().GetString("in"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open input file: %w", err)
			}
			defer f.Close()
			in = f
		}

		imported, skipped, err := export.Import(ctx, log, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Imported %d events (%d skipped)\n", imported, skipped)
		return nil
	},
}
