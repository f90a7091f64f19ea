package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-core/internal/semver"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/goclaw-core/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "coreagent",
	Short: "coreagent — trust and execution substrate for autonomous coding agents",
	Long:  "coreagent: safety guardian, audit chain, WASM sandbox, and agent spawner for building autonomous coding/ops agents. Not a UI, not an LLM client — operator tooling around the trust boundary.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $GOCLAW_CORE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(setupLogging)

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(verifyChainCmd())
	rootCmd.AddCommand(spawnCmd())
}

// setupLogging installs the process-wide slog default, matching the
// --verbose flag to log level the way every subcommand expects
// slog.Default() to already be configured by the time it logs anything.
func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func versionCmd() *cobra.Command {
	var newerThan string
	c := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("coreagent %s\n", Version)
			if newerThan != "" {
				if semver.IsNewer(newerThan, Version) {
					fmt.Printf("a newer version is available: %s\n", newerThan)
				} else {
					fmt.Println("up to date")
				}
			}
		},
	}
	c.Flags().StringVar(&newerThan, "newer-than", "", "compare a candidate version string against this build")
	return c
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("GOCLAW_CORE_CONFIG"); v != "" {
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
