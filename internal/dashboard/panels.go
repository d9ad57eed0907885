package dashboard

import (
	"fmt"
	"strings"

	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/views"
)

func (m Model) renderTimersView() string {
	list := m.svc.Timers()
	data := views.TimersPanelData{Items: make([]views.TimerItemData, 0, len(list))}
	for i, tm := range list {
		if i == m.TimerCursor {
			data.SelectedID = tm.ID
		}
		item := views.TimerItemData{
			ID:     tm.ID,
			Name:   tm.Name,
			Type:   string(tm.Type),
			Status: string(tm.Status),
			Clock:  FormatClock(tm.Remaining),
		}
		if tm.Pomodoro != nil {
			item.Phase = fmt.Sprintf("%s (session %d/%d)", tm.Pomodoro.PhaseName(), tm.Pomodoro.CurrentSession+1, tm.Pomodoro.SessionsBeforeLongBreak)
		}
		if tm.Type != model.TimerTypeStopwatch {
			pct := tm.Progress()
			item.ProgressView = m.timerProgress.ViewAs(pct)
			item.ProgressPct = int(pct * 100)
		}
		data.Items = append(data.Items, item)
	}
	return views.RenderTimersPanel(data)
}

func (m Model) renderAutomationsView() string {
	list := m.svc.Automations()
	now := m.now()
	data := views.AutomationsPanelData{Items: make([]views.AutomationItemData, 0, len(list))}
	for i, a := range list {
		if i == m.RuleCursor {
			data.SelectedID = a.ID
		}
		item := views.AutomationItemData{
			ID:      a.ID,
			Name:    a.Name,
			Trigger: describeTrigger(a),
			Action:  string(a.Action.Type),
			State:   commands.AutomationState(a, now),
		}
		if a.LastRun != nil {
			item.LastRun = a.LastRun.Local().Format("Jan 2 15:04")
		}
		data.Items = append(data.Items, item)
	}
	return views.RenderAutomationsPanel(data)
}

func (m Model) renderFiringsView() string {
	items := make([]views.FiringItemData, 0, len(m.Firings))
	for _, f := range m.Firings {
		items = append(items, views.FiringItemData{
			At:        f.FiredAt.Local().Format("15:04:05"),
			Name:      f.AutomationName,
			Action:    f.ActionType,
			Delivered: f.Delivered,
			Detail:    f.Detail,
		})
	}
	return views.RenderFiringsPanel(items)
}

func (m Model) renderCommandPalette() string {
	return views.RenderCommandPalette(m.Palette.Active, m.Palette.Input)
}

func (m Model) renderNotificationsView() string {
	if len(m.Notifications) == 0 {
		return ""
	}
	last := m.Notifications[len(m.Notifications)-1]
	return views.RenderNotification(last.Level, fmt.Sprintf("%s: %s", last.Title, last.Body))
}

func describeTrigger(a model.Automation) string {
	switch a.Trigger {
	case model.TriggerTimerComplete:
		return "when " + a.TriggerConfig.TimerID + " finishes"
	case model.TriggerWeekly:
		days := make([]string, 0, len(a.TriggerConfig.DayOfWeek))
		for _, d := range a.TriggerConfig.DayOfWeek {
			days = append(days, fmt.Sprint(d))
		}
		return fmt.Sprintf("weekly [%s] %s", strings.Join(days, ","), a.TriggerConfig.Time)
	default:
		return fmt.Sprintf("%s %s", a.Trigger, a.TriggerConfig.Time)
	}
}

func timerLabel(tm model.Timer) string {
	if tm.Name == "" {
		return tm.ID
	}
	return tm.Name
}

// FormatClock renders seconds as mm:ss, switching to h:mm:ss from one hour.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
