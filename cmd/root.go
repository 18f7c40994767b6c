package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/ecovision/internal/config"
	"github.com/example/ecovision/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ecovision",
	Short: "Classify trash photos into recycle, compost or landfill",
	Long: `EcoVision classifies a photo of a discarded item into a disposal bin.
It asks a remote vision model first and falls back to an offline color
heuristic when the model cannot be reached or answers badly.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logCfg := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
		if cmd.Name() != serveCmd.Name() {
			// Keep stdout clean for command output.
			logCfg.Output = zapcore.Lock(os.Stderr)
			logCfg.Format = "console"
		}
		logger, err := logging.NewLogger(logCfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if e, err := envFromContext(cmd.Context()); err == nil {
			_ = e.logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ./config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const envKey contextKey = "env"

type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func envFromContext(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialised")
	}
	return e, nil
}
