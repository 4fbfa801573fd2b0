package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configDir string
	logLevel  string
	logFormat string
	debug     bool

	mgr *config.Manager
}

// config returns the current snapshot with command-line overrides applied.
func (o *rootOptions) config() *config.Config {
	cfg := o.mgr.Get()
	if o.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	return &cfg
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "polycortex",
		Short: "PolyCortex - autonomous Polymarket decision agent",
		Long: `PolyCortex researches a Polymarket market, analyses its order book and trades,
and proposes a validated BUY, SELL or NO_TRADE decision.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			mgr, err := config.NewManager(config.WithConfigDir(opts.configDir))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.mgr = mgr

			cfg := opts.config()
			logging.SetDefault(logging.New(logging.Config{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Output: os.Stderr,
			}))
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "Directory holding config.json (default: <user config dir>/PolyCortex)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: auto, text, json")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newShowCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "PolyCortex %s\n", strings.TrimPrefix(Version, "v"))
		},
	}
}
