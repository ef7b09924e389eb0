package main

import (
	"github.com/spf13/cobra"
)

func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "inspect the retained debug timeline",
	}
	cmd.AddCommand(newDebugShowCmd(), newDebugClearCmd())
	return cmd
}

func newDebugShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "print the retained debug timeline as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBridge(ctx, cfgFile)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b.DebugEvents())
		},
	}
}

func newDebugClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "discard the retained debug timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBridge(ctx, cfgFile)
			if err != nil {
				return err
			}
			b.ClearDebugEvents()
			return nil
		},
	}
}
