package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foresight/internal/config"
	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/pipeline"
	"github.com/Iron-Ham/foresight/internal/tui/styles"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage once without the TUI",
	Long: `Run every stage once without the TUI.

The session generates data, uploads it, retrieves its model and makes one
prediction, printing each status change. When trainer.auto is enabled the
model is trained in-process between upload and retrieve; otherwise another
process (such as "foresight train --watch") must deploy it.

Examples:
  # Full run with the built-in trainer
  foresight run

  # Use a fixed session id and the joined upload policy
  FORESIGHT_SESSION_ID=demo FORESIGHT_PIPELINE_UPLOAD_POLICY=joined foresight run`,
	Args: cobra.NoArgs,
	RunE: runHeadless,
}

var runSkipTrain bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runSkipTrain, "skip-train", false, "do not train in-process even if trainer.auto is set")
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	env, err := newEnvironment(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	return runSession(cmd, env, cfg.Trainer.Auto && !runSkipTrain)
}

// runSession drives one orchestrator through every stage, writing progress
// to cmd's output.
func runSession(cmd *cobra.Command, env *environment, train bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	orch, err := env.newOrchestrator()
	if err != nil {
		return err
	}

	var failures stageFailures
	printer := &eventPrinter{w: out}
	subID := env.bus.SubscribeAll(func(e event.Event) {
		failures.observe(e)
		printer.print(e)
	})
	defer env.bus.Unsubscribe(subID)

	fmt.Fprintln(out, styles.Title.Render("Session "+orch.SessionID()))

	if err := orch.Generate(ctx); err != nil {
		return err
	}
	if err := orch.Upload(ctx); err != nil {
		return err
	}
	if err := orch.Drain(); err != nil {
		return err
	}
	if err := failures.first(pipeline.Upload); err != nil {
		return err
	}

	if train {
		res, err := env.trainer.Train(ctx, orch.SessionID())
		if err != nil {
			return fmt.Errorf("train: %w", err)
		}
		fmt.Fprintf(out, "%s trained %s on %d samples (loss %.4f)\n",
			styles.Muted.Render("·"), res.RemoteName, res.Samples, res.Loss)
	}

	if err := orch.Retrieve(ctx); err != nil {
		return err
	}
	if err := orch.Drain(); err != nil {
		return err
	}
	if err := failures.first(pipeline.Retrieve); err != nil {
		return err
	}
	if !orch.Gates().Has(pipeline.Predict) {
		return fmt.Errorf("retrieve: %s", orch.Status())
	}

	p, err := orch.Predict(ctx)
	if err != nil {
		return err
	}
	printPrediction(out, p)
	if p.Label == pipeline.LabelNone {
		return errors.Wrapf(errors.ErrInvalidPrediction, "no score above %.1f", pipeline.Threshold)
	}
	return nil
}

// stageFailures keeps the first failed collaborator operation per stage.
// Background completions publish from their own goroutines.
type stageFailures struct {
	mu      sync.Mutex
	byStage map[string]event.StageCompletedEvent
}

func (f *stageFailures) observe(e event.Event) {
	ev, ok := e.(event.StageCompletedEvent)
	if !ok || ev.Success {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byStage == nil {
		f.byStage = make(map[string]event.StageCompletedEvent)
	}
	if _, seen := f.byStage[ev.Stage]; !seen {
		f.byStage[ev.Stage] = ev
	}
}

// first returns the first failure reported for c, if any.
func (f *stageFailures) first(c pipeline.Capability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.byStage[c.Stage()]
	if !ok {
		return nil
	}
	return errors.NewCollaboratorError(ev.Operation, errors.New(ev.Err)).WithCapability(ev.Stage)
}

// eventPrinter writes progress lines for bus events. Upload completions
// publish from their own goroutines, so a status event can arrive after a
// newer one; such overtaken statuses are not printed.
type eventPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	statusSeq uint64
}

func (p *eventPrinter) print(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev := e.(type) {
	case event.StatusChangedEvent:
		if ev.Seq != 0 && ev.Seq <= p.statusSeq {
			return
		}
		p.statusSeq = ev.Seq
		style := lipgloss.NewStyle().Foreground(styles.StatusColor(ev.Current))
		fmt.Fprintf(p.w, "%s %s\n", style.Render(styles.StatusIcon(ev.Current)), style.Render(ev.Current))
	case event.StageCompletedEvent:
		if !ev.Success {
			fmt.Fprintf(p.w, "  %s\n", styles.Error.Render(ev.Operation+": "+ev.Err))
		}
	case event.PreconditionRejectedEvent:
		fmt.Fprintf(p.w, "  %s\n", styles.Warning.Render(ev.Capability+" rejected: "+ev.Reason))
	}
}

func printPrediction(w io.Writer, p pipeline.Prediction) {
	fmt.Fprintf(w, "\n%s %v\n", styles.Muted.Render("input: "), p.Input)
	fmt.Fprintf(w, "%s %v\n", styles.Muted.Render("scores:"), p.Vector)
	fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("label: "), styles.Primary.Render(string(p.Label)))
}
