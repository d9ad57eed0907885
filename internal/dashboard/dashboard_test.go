package dashboard

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/companiond/internal/actions"
	"github.com/sandeepkv93/companiond/internal/companion"
	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/logging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/timers"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T) (Model, *companion.Service, *time.Time) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	codec, err := crypto.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	now := base
	clock := func() time.Time { return now }
	svc, err := companion.New(companion.Deps{
		Store:      storage.NewMemoryStore(),
		Codec:      codec,
		Dispatcher: actions.NewDispatcher(actions.NoopSpeaker{}, actions.NoopNotifier{}, nil, "", logging.Discard()),
		Logger:     logging.Discard(),
		Now:        clock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	m := NewModel(svc, time.Second, WithClock(clock))
	t.Cleanup(m.Close)
	return m, svc, &now
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestTickAdvancesRunningTimer(t *testing.T) {
	m, svc, now := newTestModel(t)
	ctx := context.Background()
	tm, err := svc.CreateTimer(ctx, "tea", model.TimerTypeCountdown, 5, timers.Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.StartTimer(ctx, tm.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	*now = base.Add(2 * time.Second)
	next, cmd := m.Update(TickMsg{At: *now})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected the next tick to be scheduled")
	}
	got, _ := svc.Timer(tm.ID)
	if got.Remaining != 3 {
		t.Fatalf("expected 3s remaining, got %d", got.Remaining)
	}
	if !strings.Contains(m.View(), "00:03") {
		t.Fatalf("view should show remaining clock:\n%s", m.View())
	}
}

func TestTickIgnoresBackwardsClock(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ctx := context.Background()
	tm, _ := svc.CreateTimer(ctx, "sw", model.TimerTypeStopwatch, 0, timers.Options{})
	_, _, _ = svc.StartTimer(ctx, tm.ID)

	next, _ := m.Update(TickMsg{At: base.Add(-time.Minute)})
	_ = next.(Model)
	got, _ := svc.Timer(tm.ID)
	if got.Remaining != 0 {
		t.Fatalf("backwards tick should not advance stopwatch, got %d", got.Remaining)
	}
}

func TestTimerPaneKeys(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ctx := context.Background()
	tm, _ := svc.CreateTimer(ctx, "tea", model.TimerTypeCountdown, 60, timers.Options{})

	m = press(t, m, " ")
	if got, _ := svc.Timer(tm.ID); got.Status != model.TimerStatusRunning {
		t.Fatalf("space should start, got %s", got.Status)
	}
	m = press(t, m, " ")
	if got, _ := svc.Timer(tm.ID); got.Status != model.TimerStatusPaused {
		t.Fatalf("space should pause, got %s", got.Status)
	}
	m = press(t, m, "x")
	if len(svc.Timers()) != 0 {
		t.Fatal("x should cancel the timer")
	}
	if m.Status.IsError || !strings.Contains(m.Status.Text, "cancelled tea") {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
}

func TestAutomationPaneKeys(t *testing.T) {
	m, svc, now := newTestModel(t)
	ctx := context.Background()
	a, err := svc.CreateAutomation(ctx, "standup", model.TriggerDaily, model.TriggerConfig{Time: "09:00"}, model.Action{Type: model.ActionReminder})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}

	m = press(t, m, "tab")
	if m.Pane != PaneAutomations {
		t.Fatalf("expected automations pane, got %s", m.Pane)
	}
	m = press(t, m, "t")
	if got, _ := svc.Automation(a.ID); got.Enabled {
		t.Fatal("t should disable the automation")
	}
	m = press(t, m, "t", "p")
	got, _ := svc.Automation(a.ID)
	if got.PausedUntil == nil || !got.PausedUntil.Equal(now.Add(defaultPause)) {
		t.Fatalf("p should pause for %s, got %v", defaultPause, got.PausedUntil)
	}
	m = press(t, m, "u")
	if got, _ := svc.Automation(a.ID); got.PausedUntil != nil {
		t.Fatal("u should resume")
	}
	m = press(t, m, "d")
	if len(svc.Automations()) != 0 {
		t.Fatal("d should delete")
	}
}

func TestCommandPaletteRunsCommand(t *testing.T) {
	m, svc, _ := newTestModel(t)

	m = press(t, m, "/")
	if !m.Palette.Active {
		t.Fatal("palette should open")
	}
	m = press(t, m, "timer 5m tea", "enter")
	if m.Palette.Active {
		t.Fatal("palette should close after enter")
	}
	if len(svc.Timers()) != 1 || svc.Timers()[0].Name != "tea" {
		t.Fatalf("expected tea timer, got %+v", svc.Timers())
	}
	if m.Status.IsError {
		t.Fatalf("unexpected error status: %s", m.Status.Text)
	}

	m = press(t, m, "/", "bogus", "enter")
	if !m.Status.IsError || len(m.Notifications) == 0 {
		t.Fatalf("expected error status for unknown command, got %+v", m.Status)
	}
	if m.Notifications[len(m.Notifications)-1].Level != "error" {
		t.Fatal("expected error notification")
	}
}

func TestEventsBecomeNotifications(t *testing.T) {
	m, _, _ := newTestModel(t)
	next, cmd := m.Update(EventMsg{Event: events.Event{Kind: events.AutomationFired, Detail: "standup"}})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected to keep waiting for events")
	}
	if len(m.Notifications) != 1 || m.Notifications[0].Body != "standup" {
		t.Fatalf("unexpected notifications: %+v", m.Notifications)
	}
	for i := 0; i < maxNotifications+5; i++ {
		m.notify("n", "body", "info")
	}
	if len(m.Notifications) != maxNotifications {
		t.Fatalf("notifications should be capped at %d, got %d", maxNotifications, len(m.Notifications))
	}
}

func TestQuitAndHelp(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "?")
	if !m.HelpVisible || !strings.Contains(m.View(), "start/pause timer") {
		t.Fatal("help should list pane bindings")
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(Model).Quitting || cmd == nil {
		t.Fatal("q should quit")
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{0: "00:00", 65: "01:05", 3600: "1:00:00", 3725: "1:02:05", -3: "00:00"}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}
