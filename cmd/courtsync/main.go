package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courtsync/internal/config"
	"courtsync/internal/logging"
	"courtsync/internal/portal"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logs   *logging.Set
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "courtsync",
	Short: "courtsync - STF/STJ portal query and status classification",
	Long: `courtsync drives the STF and STJ case portals for every pending case of
the local record store, extracts parties, classification, decision and latest
movement, and suggests a new status from the movement text.

Suggested statuses are applied only by the confirm command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		logs, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		logger = logs.Get(logging.CategoryBoot)
		logger.Debug("Config loaded", zap.String("path", configPath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the courtsync version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "courtsync %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")

	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Log progress instead of showing the live display")
	classifyCmd.Flags().StringVar(&currentStatus, "current", string(portal.StatusInProgress), "Status kept when the text is empty")
	reportCmd.Flags().BoolVar(&plainReport, "plain", false, "Print raw Markdown")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
