package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reloquent/pgpromote/internal/config"
	"github.com/reloquent/pgpromote/internal/console"
	"github.com/reloquent/pgpromote/internal/engine"
	"github.com/reloquent/pgpromote/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	outputDir string
	version   = "dev"
	commit    = "none"
	date      = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pgpromote",
	Short: "pgpromote promotes PostgreSQL schema changes from development to production",
	Long: `pgpromote compares a development database (source) with production
(destination), generates an additive migration script and its rollback,
and applies them behind a safety gate that refuses destructive SQL.

Typical flow: test, compare, generate, dry-run, migrate.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pgpromote.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "artifact directory (overrides output.directory)")
}

// setup loads the config, applies flag overrides and builds the engine.
func setup(cmd *cobra.Command) (*engine.Engine, *console.Printer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if outputDir != "" {
		if cfg.Logging.Directory == filepath.Join(cfg.Output.Directory, "logs") {
			cfg.Logging.Directory = filepath.Join(outputDir, "logs")
		}
		cfg.Output.Directory = config.ExpandHome(outputDir)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Directory)
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(cfg, logger)
	if _, err := eng.LoadState(); err != nil {
		return nil, nil, fmt.Errorf("loading state: %w", err)
	}
	return eng, console.New(cmd.OutOrStdout()), nil
}
