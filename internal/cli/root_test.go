package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestRootCmd_NoArgsShowsHelp(t *testing.T) {
	cmd := &cobra.Command{
		Use:   rootCmd.Use,
		Short: rootCmd.Short,
		Long:  rootCmd.Long,
	}
	cmd.AddCommand(&cobra.Command{Use: "serve", Short: "Run the mTLS sidecar proxy"})

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "authenticating peers by SPIFFE identity")
}

func TestRootCmd_InvalidCommandErrors(t *testing.T) {
	cmd := &cobra.Command{Use: rootCmd.Use, Short: rootCmd.Short}
	cmd.AddCommand(&cobra.Command{Use: "serve"})

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"not-a-command"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestRootCmd_RegistersServeSubcommand(t *testing.T) {
	found := false
	for _, sub := range rootCmd.Commands() {
		if sub.Use == "serve" {
			found = true
		}
	}
	assert.True(t, found, "expected \"serve\" subcommand to be registered")
}
