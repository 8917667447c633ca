// Command convostream is a terminal client for the conversation service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/convostream/runtime/version"
)

// Persistent flag names.
const (
	flagConfig  = "config"
	flagVerbose = "verbose"
	flagEnvFile = "env-file"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	info := version.Get()
	root := &cobra.Command{
		Use:           "convostream",
		Short:         "Stream conversations with the tutoring service from the terminal",
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `convostream signs in to the conversation service, manages conversations
over its REST API and streams model responses over a duplex channel.

Configuration is read from --config (default ~/.convostream/config.yaml when
present), overridden by CONVOSTREAM_* environment variables. A .env file is
loaded first when it exists.`,
	}
	root.SetVersionTemplate(info.String() + "\n")

	root.PersistentFlags().String(flagConfig, "", "Path to the configuration file")
	root.PersistentFlags().BoolP(flagVerbose, "v", false, "Enable debug logging")
	root.PersistentFlags().String(flagEnvFile, ".env", "Path to an env file loaded before configuration")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newListCmd(),
		newNewCmd(),
		newDeleteCmd(),
		newChatCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}
