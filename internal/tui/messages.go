package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/pipeline"
)

// statusMsg carries a status change from the pipeline. seq orders it
// against other state changes; see event.StatusChangedEvent.
type statusMsg struct {
	current string
	seq     uint64
}

// gatesMsg carries the unlocked capabilities after a gate change.
type gatesMsg struct {
	gates pipeline.GateSet
	seq   uint64
}

// logMsg is a line for the activity log.
type logMsg string

// actionDoneMsg reports that an action dispatched from the UI returned.
type actionDoneMsg struct {
	capability pipeline.Capability
	reset      bool
	prediction *pipeline.Prediction
	err        error
}

// msgFromEvent converts a bus event into a program message. It returns nil
// for events the UI does not show.
func msgFromEvent(e event.Event) tea.Msg {
	switch ev := e.(type) {
	case event.StatusChangedEvent:
		return statusMsg{current: ev.Current, seq: ev.Seq}
	case event.GatesChangedEvent:
		return gatesMsg{gates: gatesFromNames(ev.Unlocked), seq: ev.Seq}
	case event.StageCompletedEvent:
		if ev.Success {
			return logMsg(fmt.Sprintf("%s: %s finished in %s", ev.Stage, ev.Operation, ev.Duration.Round(time.Millisecond)))
		}
		return logMsg(fmt.Sprintf("%s: %s failed: %s", ev.Stage, ev.Operation, ev.Err))
	case event.PreconditionRejectedEvent:
		return logMsg(fmt.Sprintf("rejected %s: %s", ev.Capability, ev.Reason))
	case event.PredictionMadeEvent:
		return logMsg(fmt.Sprintf("prediction %v -> %s", formatVector(ev.Vector), ev.Label))
	case event.ModelTrainedEvent:
		return logMsg(fmt.Sprintf("trainer deployed %s (%d samples, loss %.4f)", ev.RemoteName, ev.Samples, ev.Loss))
	default:
		return nil
	}
}

func gatesFromNames(names []string) pipeline.GateSet {
	var g pipeline.GateSet
	for _, n := range names {
		if c, err := pipeline.ParseCapability(n); err == nil {
			g = g.With(c)
		}
	}
	return g
}

func formatVector(v []float64) string {
	s := "["
	for i, x := range v {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.3f", x)
	}
	return s + "]"
}
