package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export-ledger <expense-id>",
	Short: "Archive an expense's decision ledger as an Excel workbook",
	Long:  "Renders the expense summary, every ledger entry and the items into an .xlsx file under export.dir and prints its path.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := startContainer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	path, err := c.Services().Approval.ArchiveLedger(ctx, args[0])
	if err != nil {
		return fmt.Errorf("export ledger %s: %w", args[0], err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
