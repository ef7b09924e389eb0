package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "force an immediate reverse-queue flush and session check",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBridge(ctx, cfgFile)
			if err != nil {
				return err
			}
			if err := b.TriggerSync(ctx); err != nil {
				return fmt.Errorf("trigger sync: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync triggered")
			return nil
		},
	}
}
