package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foresight/internal/config"
	"github.com/Iron-Ham/foresight/internal/trainer"
	"github.com/Iron-Ham/foresight/internal/tui"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the interactive demo",
	Long: `Run the interactive demo.

Press g, u, r and p to generate data, upload it, retrieve the trained model
and make a prediction. Each button stays greyed out until the step before it
succeeds. x resets the session, ? toggles help and q quits.

With trainer.auto enabled, uploads are trained in the background so the
model is ready to retrieve shortly after the upload finishes.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	env, err := newEnvironment(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	orch, err := env.newOrchestrator()
	if err != nil {
		return err
	}
	defer func() {
		if err := orch.Drain(); err != nil {
			env.logger.Warn("background operation failed during shutdown", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Trainer.Auto {
		w, err := trainer.NewWatcher(env.trainer, cfg.Storage.Resolve(cfg.Storage.WriteBucket), env.logger)
		if err != nil {
			return fmt.Errorf("watch uploads: %w", err)
		}
		w.Start(ctx)
		defer w.Stop()
	}

	env.logger.Info("starting demo", "session_id", orch.SessionID())
	return tui.New(ctx, orch, env.bus).Run(ctx)
}
