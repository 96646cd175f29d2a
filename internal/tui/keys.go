package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/Iron-Ham/foresight/internal/pipeline"
)

// keyMap holds the demo's key bindings. It implements help.KeyMap.
type keyMap struct {
	Generate key.Binding
	Upload   key.Binding
	Retrieve key.Binding
	Predict  key.Binding
	Reset    key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Generate: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "generate data")),
		Upload:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload data")),
		Retrieve: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retrieve model")),
		Predict:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "predict")),
		Reset:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// forCapability returns the binding that triggers c.
func (k keyMap) forCapability(c pipeline.Capability) key.Binding {
	switch c {
	case pipeline.Upload:
		return k.Upload
	case pipeline.Retrieve:
		return k.Retrieve
	case pipeline.Predict:
		return k.Predict
	default:
		return k.Generate
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Generate, k.Upload, k.Retrieve, k.Predict, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Generate, k.Upload, k.Retrieve, k.Predict},
		{k.Reset, k.Help, k.Quit},
	}
}
