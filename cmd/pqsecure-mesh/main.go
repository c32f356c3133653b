// Command pqsecure-mesh runs the identity-bound mTLS sidecar proxy: it
// terminates and originates mutual TLS between microservices,
// authenticates peers by SPIFFE identity, authorizes connections
// against a declarative policy, and renews its own certificate ahead of
// expiry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pqsecure/mesh/internal/cli"
)

// Exit codes per spec.md §6: 0 on clean shutdown via SIGINT/SIGTERM,
// non-zero on configuration validation failure or fatal initialization
// error.
const (
	exitOK    = 0
	exitFatal = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
	os.Exit(exitOK)
}
