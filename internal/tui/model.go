package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/pipeline"
	"github.com/Iron-Ham/foresight/internal/tui/styles"
)

// maxLogLines is how many activity lines the log box keeps.
const maxLogLines = 10

// Pipeline is the part of the orchestrator the demo drives.
type Pipeline interface {
	Generate(ctx context.Context) error
	Upload(ctx context.Context) error
	Retrieve(ctx context.Context) error
	Predict(ctx context.Context) (pipeline.Prediction, error)
	Reset()

	Status() string
	Gates() pipeline.GateSet
	SessionID() string
}

// Model is the bubbletea model of the demo screen.
//
// Actions never run inside Update: the pipeline publishes events
// synchronously and those are forwarded with Program.Send, which blocks
// until the event loop is free.
//
// Status and gates change only through events. Completions on different
// goroutines can deliver their events out of order, so each is applied only
// if its sequence number is newer than the last one applied.
type Model struct {
	ctx      context.Context
	pipeline Pipeline
	keys     keyMap
	help     help.Model
	spinner  spinner.Model

	sessionID  string
	status     string
	statusSeq  uint64
	gates      pipeline.GateSet
	gatesSeq   uint64
	prediction *pipeline.Prediction
	log        []string

	width    int
	height   int
	quitting bool
}

// NewModel creates the model from the pipeline's current state.
func NewModel(ctx context.Context, p Pipeline) Model {
	return Model{
		ctx:       ctx,
		pipeline:  p,
		keys:      defaultKeyMap(),
		help:      help.New(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Warning)),
		sessionID: p.SessionID(),
		status:    p.Status(),
		gates:     p.Gates(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		if newer(msg.seq, m.statusSeq) {
			m.status, m.statusSeq = msg.current, msg.seq
		}
		return m, nil

	case gatesMsg:
		if newer(msg.seq, m.gatesSeq) {
			m.gates, m.gatesSeq = msg.gates, msg.seq
		}
		return m, nil

	case logMsg:
		m.appendLog(string(msg))
		return m, nil

	case actionDoneMsg:
		if msg.prediction != nil {
			m.prediction = msg.prediction
		}
		if line := m.actionErrorLine(msg); line != "" {
			m.appendLog(line)
		}
		return m, nil
	}

	return m, nil
}

// newer reports whether an event stamped seq should replace state last set
// by an event stamped applied. Unstamped events always apply.
func newer(seq, applied uint64) bool {
	return seq == 0 || seq > applied
}

// actionErrorLine renders an action's error for the activity log.
// Rejections are already logged from their own event, and errors that are
// not meant for users only get a pointer to the log file.
func (m Model) actionErrorLine(msg actionDoneMsg) string {
	switch err := msg.err; {
	case err == nil, errors.IsPrecondition(err):
		return ""
	case !errors.IsUserFacing(err):
		return fmt.Sprintf("%s: unexpected failure, see the log for details", msg.name())
	case errors.IsRetryable(err):
		k := m.keys.forCapability(msg.capability).Help().Key
		return fmt.Sprintf("%s: %v (press %s to retry)", msg.name(), err, k)
	default:
		return fmt.Sprintf("%s: %v", msg.name(), err)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Reset):
		m.prediction = nil
		return m, m.resetCmd()
	}

	for _, c := range pipeline.Capabilities() {
		if key.Matches(msg, m.keys.forCapability(c)) {
			return m, m.actionCmd(c)
		}
	}
	return m, nil
}

// actionCmd runs the action for c off the event loop. Locked capabilities are
// still dispatched so the pipeline can report the rejection.
func (m Model) actionCmd(c pipeline.Capability) tea.Cmd {
	ctx, p := m.ctx, m.pipeline
	return func() tea.Msg {
		done := actionDoneMsg{capability: c}
		switch c {
		case pipeline.Generate:
			done.err = p.Generate(ctx)
		case pipeline.Upload:
			done.err = p.Upload(ctx)
		case pipeline.Retrieve:
			done.err = p.Retrieve(ctx)
		case pipeline.Predict:
			pred, err := p.Predict(ctx)
			done.err = err
			if err == nil {
				done.prediction = &pred
			}
		}
		return done
	}
}

func (m Model) resetCmd() tea.Cmd {
	p := m.pipeline
	return func() tea.Msg {
		p.Reset()
		return actionDoneMsg{reset: true}
	}
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (d actionDoneMsg) name() string {
	if d.reset {
		return "reset"
	}
	return d.capability.Stage()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render("Foresight"))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("session " + m.sessionID))
	b.WriteString("\n\n")

	b.WriteString(m.renderButtons())
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	if m.prediction != nil {
		b.WriteString(m.renderPrediction())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderLog())
	b.WriteString("\n")
	b.WriteString(styles.HelpBar.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderButtons() string {
	caps := pipeline.Capabilities()
	buttons := make([]string, 0, len(caps))
	for _, c := range caps {
		k := m.keys.forCapability(c).Help().Key
		buttons = append(buttons, styles.RenderButton(c, k, m.gates.Has(c)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
}

func (m Model) renderStatus() string {
	icon := styles.StatusIcon(m.status)
	if strings.HasSuffix(m.status, "...") {
		icon = m.spinner.View()
	}
	style := lipgloss.NewStyle().Foreground(styles.StatusColor(m.status)).Bold(true)
	return icon + " " + style.Render(m.status)
}

func (m Model) renderPrediction() string {
	p := m.prediction
	return styles.Muted.Render("input ") + styles.Text.Render(formatVector(p.Input)) +
		styles.Muted.Render("  scores ") + styles.Text.Render(formatVector(p.Vector[:])) +
		styles.Muted.Render("  label ") + styles.Primary.Render(string(p.Label))
}

func (m Model) renderLog() string {
	lines := m.log
	// Header, buttons, status, prediction and help use about fourteen rows.
	if room := m.height - 14; m.height > 0 && len(lines) > max(room, 1) {
		lines = lines[len(lines)-max(room, 1):]
	}
	if len(lines) == 0 {
		lines = []string{styles.Muted.Render("no activity yet")}
	}
	box := styles.ContentBox
	if m.width > 4 {
		box = box.Width(m.width - 4)
		// Border and padding take four more columns.
		fitted := make([]string, len(lines))
		for i, l := range lines {
			fitted[i] = truncate(l, m.width-8)
		}
		lines = fitted
	}
	return box.Render(strings.Join(lines, "\n"))
}

// truncate shortens s to maxWidth visual columns, ending with "...". Escape
// sequences and wide characters are measured correctly.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}
