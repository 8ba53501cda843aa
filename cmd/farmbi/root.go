package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/pkg/config"
)

// app carries the global flags and the loaded configuration shared by every
// subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logFile    io.Closer
	out        io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{out: os.Stdout}

	cmd := &cobra.Command{
		Use:           "farmbi",
		Short:         "Monthly close and business intelligence for farm operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.loadConfig()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logFile != nil {
				a.logFile.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")

	cmd.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newCloseCmd(a),
		newSnapshotCmd(a),
		newEvaluateCmd(a),
		newCacheCmd(a),
		newTokenCmd(a),
		newSeedCmd(a),
	)
	return cmd
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	a.logFile = logger.SetupFile(logger.FileConfig{
		Path:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
	})
	a.cfg = cfg
	return nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
