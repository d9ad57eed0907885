package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.interval), waitForEventCmd(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		return m, nil
	case tea.KeyMsg:
		if m.Palette.Active {
			if typed.String() == m.Keys.Help {
				m.HelpVisible = !m.HelpVisible
				return m, nil
			}
			return m.handlePaletteKey(typed), nil
		}
		switch typed.String() {
		case "/":
			m.Palette.Active = true
			m.Palette.Input = ""
			m.commandInput.Focus()
			m.commandInput.SetValue("")
			m.Status = StatusBar{Text: "command palette active"}
			return m, nil
		case m.Keys.SwitchPane:
			if m.Pane == PaneTimers {
				m.Pane = PaneAutomations
			} else {
				m.Pane = PaneTimers
			}
			return m, nil
		case m.Keys.Help:
			m.HelpVisible = !m.HelpVisible
			return m, nil
		case "ctrl+c", m.Keys.Quit:
			m.Quitting = true
			m.Close()
			return m, tea.Quit
		}
		if m.Pane == PaneTimers {
			return m.handleTimerKey(typed), nil
		}
		return m.handleAutomationKey(typed), nil
	case TickMsg:
		return m.onTick(typed.At)
	case EventMsg:
		m.onEvent(typed.Event)
		return m, waitForEventCmd(m.events)
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			m.notify("Error", typed.Err.Error(), "error")
		}
		return m, nil
	}
	return m, nil
}

// onTick advances the service by the wall time since the previous tick.
func (m Model) onTick(at time.Time) (tea.Model, tea.Cmd) {
	if at.IsZero() {
		at = m.now()
	}
	elapsed := at.Sub(m.lastTick)
	if elapsed < 0 {
		elapsed = 0
	}
	m.lastTick = at
	m.svc.Tick(m.ctx, at, elapsed)
	m.refreshFirings()
	m.clampCursors()
	return m, tickCmd(m.interval)
}

func (m *Model) onEvent(ev events.Event) {
	switch ev.Kind {
	case events.TimerCompleted:
		m.notify("Timer", fmt.Sprintf("%s finished", orID(ev.Detail, ev.TimerID)), "info")
	case events.TimerPhaseChanged:
		m.notify("Pomodoro", fmt.Sprintf("%s: %s", m.timerName(ev.TimerID), ev.Detail), "info")
	case events.AutomationFired:
		m.notify("Automation", orID(ev.Detail, ev.AutomationID), "info")
	case events.AutomationOrphaned:
		m.notify("Automation", fmt.Sprintf("%s lost its timer and was disabled", orID(ev.Detail, ev.AutomationID)), "warn")
	}
}

func (m Model) handleTimerKey(msg tea.KeyMsg) Model {
	list := m.svc.Timers()
	switch msg.String() {
	case "j", "down":
		if m.TimerCursor < len(list)-1 {
			m.TimerCursor++
		}
		return m
	case "k", "up":
		if m.TimerCursor > 0 {
			m.TimerCursor--
		}
		return m
	}
	if len(list) == 0 {
		return m
	}
	tm := list[min(m.TimerCursor, len(list)-1)]
	var err error
	switch msg.String() {
	case " ":
		if tm.Status == model.TimerStatusRunning {
			_, _, err = m.svc.PauseTimer(m.ctx, tm.ID)
			m.setResult("paused "+timerLabel(tm), err)
		} else {
			_, _, err = m.svc.StartTimer(m.ctx, tm.ID)
			m.setResult("started "+timerLabel(tm), err)
		}
	case "r":
		_, _, err = m.svc.ResetTimer(m.ctx, tm.ID)
		m.setResult("reset "+timerLabel(tm), err)
	case "x":
		_, err = m.svc.DeleteTimer(m.ctx, tm.ID)
		m.setResult("cancelled "+timerLabel(tm), err)
		m.clampCursors()
	}
	return m
}

func (m Model) handleAutomationKey(msg tea.KeyMsg) Model {
	list := m.svc.Automations()
	switch msg.String() {
	case "j", "down":
		if m.RuleCursor < len(list)-1 {
			m.RuleCursor++
		}
		return m
	case "k", "up":
		if m.RuleCursor > 0 {
			m.RuleCursor--
		}
		return m
	}
	if len(list) == 0 {
		return m
	}
	a := list[min(m.RuleCursor, len(list)-1)]
	var err error
	switch msg.String() {
	case "t":
		a, err = m.svc.ToggleAutomation(m.ctx, a.ID)
		m.setResult(fmt.Sprintf("%s enabled=%v", a.Name, a.Enabled), err)
	case "p":
		_, err = m.svc.PauseAutomation(m.ctx, a.ID, defaultPause)
		m.setResult(fmt.Sprintf("paused %s for %s", a.Name, defaultPause), err)
	case "u":
		_, err = m.svc.ResumeAutomation(m.ctx, a.ID)
		m.setResult("resumed "+a.Name, err)
	case "d":
		err = m.svc.DeleteAutomation(m.ctx, a.ID)
		m.setResult("deleted "+a.Name, err)
		m.clampCursors()
	}
	return m
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc":
		m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		m = m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m
		}
		m.commandInput, _ = m.commandInput.Update(msg)
		m.Palette.Input = m.commandInput.Value()
	}
	return m
}

func (m Model) executePaletteCommand() Model {
	raw := strings.TrimSpace(m.Palette.Input)
	res, err := commands.Run(m.ctx, raw, commands.ForService(m.svc))
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		m.notify("Command Failed", err.Error(), "error")
	} else {
		m.Status = StatusBar{Text: firstLine(res.Message)}
		m.notify("Command", res.Message, "info")
	}
	m.closePalette()
	m.clampCursors()
	return m
}

func (m *Model) closePalette() {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
}

func (m *Model) setResult(text string, err error) {
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return
	}
	m.Status = StatusBar{Text: text}
}

func (m *Model) notify(title, body, level string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	m.Notifications = append(m.Notifications, Notification{
		Title: title,
		Body:  body,
		Level: level,
		At:    m.now(),
	})
	if len(m.Notifications) > maxNotifications {
		m.Notifications = m.Notifications[len(m.Notifications)-maxNotifications:]
	}
}

func (m *Model) refreshFirings() {
	recs, err := m.svc.Firings(m.ctx, storage.FiringListFilter{Limit: recentFirings})
	if err != nil {
		m.Status = StatusBar{Text: "load firings: " + err.Error(), IsError: true}
		return
	}
	m.Firings = recs
}

func (m *Model) clampCursors() {
	if n := len(m.svc.Timers()); m.TimerCursor >= n {
		m.TimerCursor = max(0, n-1)
	}
	if n := len(m.svc.Automations()); m.RuleCursor >= n {
		m.RuleCursor = max(0, n-1)
	}
}

func (m Model) timerName(id string) string {
	if tm, err := m.svc.Timer(id); err == nil {
		return timerLabel(tm)
	}
	return id
}

func (m Model) View() string {
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}
	right := m.renderAutomationsView()
	if m.HelpVisible {
		right += "\n\n" + m.renderHelpView()
	}
	notification := strings.TrimSpace(strings.Join([]string{
		m.renderCommandPalette(),
		m.renderNotificationsView(),
	}, "\n"))

	return views.RenderApp(views.AppData{
		Header:       fmt.Sprintf("companiond | pane: %s | %s", m.Pane, m.lastTick.Local().Format("15:04:05")),
		LeftPane:     m.renderTimersView(),
		RightPane:    right,
		BottomPane:   m.renderFiringsView(),
		StatusLine:   status,
		Notification: notification,
		Footer:       fmt.Sprintf("keys: %s pane | / cmd | %s help | %s quit", m.Keys.SwitchPane, m.Keys.Help, m.Keys.Quit),
		Width:        m.width,
	})
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(at time.Time) tea.Msg { return TickMsg{At: at} })
}

func waitForEventCmd(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

// Run starts the dashboard on the terminal and blocks until it exits.
func Run(ctx context.Context, m Model) error {
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func orID(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
