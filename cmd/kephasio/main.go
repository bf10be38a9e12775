package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "kephasio",
		Short: "Command line client for socket.io 0.9 servers",
		Long: `kephasio talks the legacy Socket.IO protocol (revision 1) over WebSocket.

It performs the HTTP handshake, keeps the session alive with heartbeats
and prints or sends packets:

  • listen  print every message, JSON message, event and error
  • emit    send one event and optionally wait for its acknowledgment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&flags.url, "url", "u", "", "Server URL (default from config, ws://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&flags.resource, "resource", "r", "", "Socket.IO resource path (default /socket.io)")
	rootCmd.PersistentFlags().StringVarP(&flags.endpoint, "endpoint", "e", "", "Namespace to join, e.g. /chat")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(
		listenCmd(&flags),
		emitCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
