package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waigayahq/waigaya/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/waigayahq/waigaya/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "waigaya",
	Short: "Waigaya — Slack activity mirror daemon",
	Long:  "Waigaya mirrors live Slack workspace activity into a local presentation surface: it ingests Socket Mode events, enriches them with user, emoji and thread context, and pushes UI-ready events over a local WebSocket gateway.",
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $WAIGAYA_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("waigaya %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("WAIGAYA_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
