package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/bridgeconfig"
	"github.com/bmbridge/bmbridge/internal/hostfs"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "inspect or edit the bridge's profile configuration",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "print the current bridge config as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadBridgeConfig(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "replace the bridge config from a JSON file (use - for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readJSONInput(file, cmd)
			if err != nil {
				return err
			}
			var cfg bridgeconfig.BridgeConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("decode config: %w", err)
			}
			return saveBridgeConfig(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file to read the config from")
	return cmd
}

// kvStoreForCLI opens the same on-disk KV store the running daemon
// uses, so config get/set talk to the live record without needing the
// daemon to expose an RPC surface.
func kvStoreForCLI() (*hostfs.KVStore, error) {
	return hostfs.NewKVStore(filepath.Join(hostfs.DefaultDataDir(), "kv"))
}

func loadBridgeConfig(ctx context.Context) (bridgeconfig.BridgeConfig, error) {
	kv, err := kvStoreForCLI()
	if err != nil {
		return bridgeconfig.BridgeConfig{}, err
	}
	store := bridgeconfig.New(kv, nil, nil, "", noopLogger())
	return store.Get(ctx)
}

func saveBridgeConfig(ctx context.Context, cfg bridgeconfig.BridgeConfig) error {
	kv, err := kvStoreForCLI()
	if err != nil {
		return err
	}
	store := bridgeconfig.New(kv, nil, nil, "", noopLogger())
	return store.Set(ctx, cfg)
}
