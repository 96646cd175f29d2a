package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/foresight/internal/pipeline"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	LockedColor    = lipgloss.Color("#5E5E5E") // Locked capability background

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Base styles
	Title = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)

	Subtitle = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)

	// Help bar
	HelpBar = lipgloss.NewStyle().Foreground(MutedColor).MarginTop(1)

	HelpKey = lipgloss.NewStyle().Bold(true).Foreground(SecondaryColor)

	// Content area
	ContentBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(BorderColor).Padding(0, 1)

	// Footer / status bar
	StatusBar = lipgloss.NewStyle().Foreground(TextColor).Background(SurfaceColor).Padding(0, 1)

	button = lipgloss.NewStyle().Bold(true).Padding(0, 2).MarginRight(1)
)

// CapabilityStyle is how one capability is drawn.
type CapabilityStyle struct {
	Label string
	Icon  string
	Color lipgloss.Color // Background while unlocked
}

// capabilityStyles is the single style mapping for every capability.
var capabilityStyles = map[pipeline.Capability]CapabilityStyle{
	pipeline.Generate: {Label: "Generate Data", Icon: "◆", Color: lipgloss.Color("#005493")},
	pipeline.Upload:   {Label: "Upload Data", Icon: "↑", Color: lipgloss.Color("#009051")},
	pipeline.Retrieve: {Label: "Retrieve Model", Icon: "↓", Color: lipgloss.Color("#FF7E79")},
	pipeline.Predict:  {Label: "Generate Prediction", Icon: "★", Color: lipgloss.Color("#D783FF")},
}

// ForCapability returns the style of c. Unknown capabilities get a muted
// placeholder.
func ForCapability(c pipeline.Capability) CapabilityStyle {
	if s, ok := capabilityStyles[c]; ok {
		return s
	}
	return CapabilityStyle{Label: c.String(), Icon: "?", Color: MutedColor}
}

// Button returns the lipgloss style for c's button.
func Button(c pipeline.Capability, unlocked bool) lipgloss.Style {
	if !unlocked {
		return button.Foreground(MutedColor).Background(LockedColor).Bold(false)
	}
	return button.Foreground(TextColor).Background(ForCapability(c).Color)
}

// RenderButton draws c's button with its key hint.
func RenderButton(c pipeline.Capability, key string, unlocked bool) string {
	s := ForCapability(c)
	return Button(c, unlocked).Render("[" + key + "] " + s.Icon + " " + s.Label)
}

// StatusColor returns the color for a status line.
func StatusColor(status string) lipgloss.Color {
	switch {
	case strings.HasPrefix(status, "Error"):
		return ErrorColor
	case strings.HasSuffix(status, "..."):
		return WarningColor
	case status == pipeline.StatusDefault:
		return MutedColor
	default:
		return SecondaryColor
	}
}

// StatusIcon returns the icon for a status line.
func StatusIcon(status string) string {
	switch StatusColor(status) {
	case ErrorColor:
		return "✗"
	case WarningColor:
		return "●"
	case MutedColor:
		return "○"
	default:
		return "✓"
	}
}
