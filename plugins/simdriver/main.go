// Command simdriver serves the simulated radio link as an out-of-process
// device driver.
package main

import (
	"fmt"
	"os"
	"time"

	deviceadapter "uvfleet/internal/modules/device/adapter/out"
	driverrpc "uvfleet/internal/modules/device/adapter/out/rpc"

	"github.com/hashicorp/go-plugin"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := deviceadapter.SimOptions{}
	cmd := &cobra.Command{
		Use:           "simdriver",
		Short:         "Simulated disinfection device driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			transport := deviceadapter.NewSimTransport(opts)
			defer transport.Close()
			plugin.Serve(&plugin.ServeConfig{
				HandshakeConfig: driverrpc.HandshakeConfig,
				Plugins:         driverrpc.PluginMap(driverrpc.NewTransportServer(transport)),
				GRPCServer:      plugin.DefaultGRPCServer,
			})
			return nil
		},
	}
	cmd.Flags().Int64Var(&opts.Seed, "seed", time.Now().UnixNano(), "random seed")
	cmd.Flags().Float64Var(&opts.ConnectFailureRate, "connect-failure-rate", 0.2, "probability a connect attempt fails")
	cmd.Flags().Float64Var(&opts.CommandFailureRate, "command-failure-rate", 0, "probability a command fails")
	cmd.Flags().Float64Var(&opts.DiscoveryRate, "discovery-rate", 0.5, "probability a scan finds a new device")
	cmd.Flags().DurationVar(&opts.CommandDelay, "command-delay", 0, "delay before each command is answered")
	return cmd
}
