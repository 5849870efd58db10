// tpuartd - KNX TP-UART gateway
//
// tpuartd drives a TP-UART transceiver on a serial line and bridges the
// KNX twisted-pair bus to MQTT, InfluxDB, a SQLite address recorder and an
// HTTP/WebSocket API.
//
// Commands:
//   - run:     start the gateway (default)
//   - send:    put one group telegram on the line and exit
//   - monitor: print every telegram seen on the line
//   - version: print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootCmd builds the command tree. Running the root command starts the
// gateway, so a bare "tpuartd" behaves like "tpuartd run".
func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "tpuartd",
		Short: "KNX TP-UART gateway",
		Long: `tpuartd drives a TP-UART transceiver on a serial line.

Received telegrams are published to MQTT, recorded to InfluxDB and SQLite,
and streamed to WebSocket monitors. Group writes, reads and answers can be
sent through MQTT command topics or the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd.Context(), configPath)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"configuration file (.yaml or .toml), also TPUART_CONFIG")

	root.AddCommand(
		runCmd(&configPath),
		sendCmd(&configPath),
		monitorCmd(&configPath),
		versionCmd(),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses TPUART_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TPUART_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
