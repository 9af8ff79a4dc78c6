// Package relaycmder
package relaycmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/relay/cmd/relay/auth"
	configcmder "github.com/papercomputeco/relay/cmd/relay/config"
	runcmder "github.com/papercomputeco/relay/cmd/relay/run"
	versioncmder "github.com/papercomputeco/relay/cmd/version"
)

const relayLongDesc string = `Relay bridges a local stdio JSON-RPC client to a remote MCP service.

The local side speaks newline-delimited JSON-RPC over stdin/stdout. The
remote side is an SSE stream for server pushes plus an HTTP POST endpoint
the server announces over that stream.

Run the bridge using:
  relay run                Start bridging stdin/stdout to the remote
  relay auth devin         Store the API key used as the bearer token
  relay config list        Show the persistent configuration`

const relayShortDesc string = "Relay - stdio to MCP bridge"

func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: relayShortDesc,
		Long:  relayLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .relay/ directory location")

	// Add subcommands
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
