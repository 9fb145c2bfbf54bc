// Package cmd is the chatrelay command line: the gateway itself plus the
// operator tools around it.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

// Version is stamped at build time:
//
//	-ldflags "-X github.com/nextlevelbuilder/chatrelay/cmd.Version=v1.2.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd with no subcommand runs the gateway.
var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Multi-channel conversational router",
	Long: "chatrelay takes messages from Telegram, Discord, WhatsApp, web chat and voice, " +
		"decides whether a command, a flow or the agent answers, and renders the reply for the channel it came from.",
	PersistentPreRun: func(*cobra.Command, []string) { setupLogging() },
	Run:              func(*cobra.Command, []string) { runGateway() },
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: config.json or $CHATRELAY_CONFIG)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "gateway",
			Short: "Run the gateway, channels and route consumers",
			Run:   func(*cobra.Command, []string) { runGateway() },
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build and protocol version",
			Run: func(*cobra.Command, []string) {
				fmt.Printf("chatrelay %s (protocol %d)\n", Version, protocol.ProtocolVersion)
			},
		},
		doctorCmd(),
		migrateCmd(),
		routeCmd(),
	)
}

func resolveConfigPath() string {
	switch {
	case cfgFile != "":
		return cfgFile
	case os.Getenv("CHATRELAY_CONFIG") != "":
		return os.Getenv("CHATRELAY_CONFIG")
	}
	return "config.json"
}

// setupLogging installs the process-wide text logger on stdout.
func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
