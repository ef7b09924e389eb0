package main

import (
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/bridgeconfig"
	"github.com/bmbridge/bmbridge/internal/redact"
)

var profileShowQR bool

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "inspect the active connection profile",
	}
	cmd.AddCommand(newProfileShowCmd())
	return cmd
}

func newProfileShowCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "show",
		Short: "print the resolved active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadBridgeConfig(ctx)
			if err != nil {
				return err
			}
			profile, ok := bridgeconfig.Resolve(cfg)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no profile configured")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "clientId:    %s\n", profile.ClientID)
			fmt.Fprintf(out, "enabled:     %t\n", profile.Enabled)
			fmt.Fprintf(out, "priority:    %d\n", profile.Priority)
			if profile.WSURL != "" {
				fmt.Fprintf(out, "wsUrl:       %s\n", profile.WSURL)
			}
			if profile.URL != "" {
				fmt.Fprintf(out, "url:         %s\n", profile.URL)
			}
			fmt.Fprintf(out, "fingerprint: %s\n", redact.Fingerprint(profile.Token))

			if profileShowQR {
				return printProfileQR(out, profile)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&profileShowQR, "qr", false, "render a pairing QR code for this profile")
	return c
}

// printProfileQR encodes the profile's connection endpoint plus a
// fingerprint of its token, never the raw token itself, so scanning
// the code leaks nothing a screen-shoulder-surfer could replay.
func printProfileQR(out io.Writer, p bridgeconfig.Profile) error {
	endpoint := p.WSURL
	if endpoint == "" {
		endpoint = p.URL
	}
	payload := fmt.Sprintf("bmbridge:%s:%s", endpoint, redact.Fingerprint(p.Token))

	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode pairing qr: %w", err)
	}
	fmt.Fprintln(out, q.ToString(false))
	return nil
}
