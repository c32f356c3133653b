// Package cli implements the pqsecure-mesh command-line entry points.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version is the CLI's reported version; set by linker flags in
// release builds.
var Version = "0.1.0"

// Global flags shared by every subcommand.
var (
	globalConfigPath  string
	globalListenAddr  string
	globalBackendAddr string
	globalQuiet       bool
	globalFormat      string
)

var rootCmd = &cobra.Command{
	Use:   "pqsecure-mesh",
	Short: "Identity-bound mTLS sidecar proxy with post-quantum crypto support",
	Long: `pqsecure-mesh terminates and originates mutual TLS between microservices,
authenticating peers by SPIFFE identity and authorizing connections against a
declarative access policy. It optionally negotiates a post-quantum hybrid key
exchange and renews its own certificate from a configured certificate
authority before expiry.`,
	Version: Version,
}

// Execute runs the CLI with a background context.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the CLI with the provided context, which should
// already carry the process's shutdown signal.
func ExecuteContext(ctx context.Context) error {
	rootCmd.SetContext(ctx)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("pqsecure-mesh: %w", err)
	}
	return nil
}

func init() { //nolint:gochecknoinits // cobra requires init for command registration
	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "config", "",
		"Path to configuration file (overrides PQSECURE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&globalListenAddr, "listen-addr", "",
		"Override proxy.listen_addr")
	rootCmd.PersistentFlags().StringVar(&globalBackendAddr, "backend-addr", "",
		"Override proxy.backend.address")
	rootCmd.PersistentFlags().BoolVar(&globalQuiet, "quiet", false,
		"Suppress non-essential log output")
	rootCmd.PersistentFlags().StringVar(&globalFormat, "format", "text",
		"Log output format (text|json)")

	rootCmd.AddCommand(serveCmd)
}

// timeoutContext is a small helper serve.go uses to bound one-off
// startup calls (e.g. initial provisioning) without affecting the
// proxy's own steady-state run loop.
func timeoutContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
