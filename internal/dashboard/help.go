package dashboard

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"

	"github.com/sandeepkv93/companiond/internal/views"
)

type KeyBinding struct {
	Key    string
	Action string
}

type helpKeyMap struct {
	short []key.Binding
	full  [][]key.Binding
}

func (k helpKeyMap) ShortHelp() []key.Binding  { return k.short }
func (k helpKeyMap) FullHelp() [][]key.Binding { return k.full }

func (m Model) renderHelpView() string {
	bindings := m.helpBindings()
	var plain []string
	for _, kb := range m.paneBindings() {
		plain = append(plain, fmt.Sprintf("- %s: %s", kb.Key, kb.Action))
	}
	return views.RenderHelpPanel(views.HelpPanelData{
		Bindings: plain,
		HelpView: m.helpModel.View(helpKeyMap{
			short: bindings,
			full:  [][]key.Binding{bindings},
		}),
	})
}

func (m Model) globalBindings() []KeyBinding {
	return []KeyBinding{
		{Key: m.Keys.SwitchPane, Action: "switch pane"},
		{Key: "/", Action: "open command palette"},
		{Key: m.Keys.Help, Action: "toggle help panel"},
		{Key: m.Keys.Quit, Action: "quit"},
	}
}

func (m Model) paneBindings() []KeyBinding {
	switch m.Pane {
	case PaneAutomations:
		return []KeyBinding{
			{Key: "j/k", Action: "move cursor"},
			{Key: "t", Action: "toggle enabled"},
			{Key: "p", Action: "pause for " + defaultPause.String()},
			{Key: "u", Action: "resume"},
			{Key: "d", Action: "delete automation"},
		}
	default:
		return []KeyBinding{
			{Key: "j/k", Action: "move cursor"},
			{Key: "space", Action: "start/pause timer"},
			{Key: "r", Action: "reset timer"},
			{Key: "x", Action: "cancel timer"},
		}
	}
}

func (m Model) helpBindings() []key.Binding {
	global, pane := m.globalBindings(), m.paneBindings()
	out := make([]key.Binding, 0, len(global)+len(pane))
	for _, kb := range append(global, pane...) {
		out = append(out, key.NewBinding(key.WithKeys(kb.Key), key.WithHelp(kb.Key, kb.Action)))
	}
	return out
}
