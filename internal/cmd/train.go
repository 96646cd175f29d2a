package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foresight/internal/config"
	"github.com/Iron-Ham/foresight/internal/trainer"
	"github.com/Iron-Ham/foresight/internal/tui/styles"
)

var trainCmd = &cobra.Command{
	Use:   "train [session-id]",
	Short: "Train and deploy models from uploaded data",
	Long: `Train and deploy models from uploaded data.

With a session id, fits a model on the newest upload of that session and
writes it to the read bucket. With --watch, keeps running and trains every
new upload as it lands in the write bucket, until interrupted.

Examples:
  # Train the latest upload of one session
  foresight train 3f0c1b6e-6c1a-4a0e-9a8e-2f1f4f9a7c11

  # Serve uploads from demo sessions running elsewhere
  foresight train --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrain,
}

var trainWatch bool

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().BoolVarP(&trainWatch, "watch", "w", false, "train every new upload until interrupted")
}

func runTrain(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !trainWatch {
		return fmt.Errorf("a session id is required unless --watch is set")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	env, err := newEnvironment(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	out := cmd.OutOrStdout()
	report := func(res *trainer.Result, err error) {
		if err != nil {
			fmt.Fprintln(out, styles.Error.Render("✗ "+err.Error()))
			return
		}
		fmt.Fprintf(out, "%s %s (%d samples, loss %.4f)\n",
			styles.Secondary.Render("✓ deployed"), res.RemoteName, res.Samples, res.Loss)
	}

	if len(args) == 1 {
		res, err := env.trainer.Train(cmd.Context(), args[0])
		report(res, err)
		if err != nil || !trainWatch {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := cfg.Storage.Resolve(cfg.Storage.WriteBucket)
	w, err := trainer.NewWatcher(env.trainer, dir, env.logger)
	if err != nil {
		return fmt.Errorf("watch uploads: %w", err)
	}
	w.OnResult(report)
	w.Start(ctx)
	defer w.Stop()

	fmt.Fprintf(out, "%s %s\n", styles.Muted.Render("watching"), dir)
	<-ctx.Done()
	return nil
}
