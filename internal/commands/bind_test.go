package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/companiond/internal/actions"
	"github.com/sandeepkv93/companiond/internal/companion"
	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/logging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/timers"
)

func newBoundService(t *testing.T) (*companion.Service, Handlers) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	codec, err := crypto.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	logger := logging.Discard()
	svc, err := companion.New(companion.Deps{
		Store:      storage.NewMemoryStore(),
		Codec:      codec,
		Dispatcher: actions.NewDispatcher(actions.NoopSpeaker{}, actions.NoopNotifier{}, nil, "", logger),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, ForService(svc)
}

func mustRun(t *testing.T, h Handlers, in string) string {
	t.Helper()
	res, err := Run(context.Background(), in, h)
	if err != nil {
		t.Fatalf("%q: %v", in, err)
	}
	return res.Message
}

func TestBoundTimerLifecycle(t *testing.T) {
	svc, h := newBoundService(t)

	msg := mustRun(t, h, "timer 90s Tea")
	if msg != `Started 1m30s timer "Tea"` {
		t.Fatalf("unexpected reply: %q", msg)
	}
	tm, err := svc.Timer("tea")
	if err != nil || tm.Status != model.TimerStatusRunning || tm.Duration != 90 {
		t.Fatalf("timer not running: %v %#v", err, tm)
	}

	if msg := mustRun(t, h, "start TEA"); !strings.Contains(msg, "already running") {
		t.Fatalf("expected no-op reply, got %q", msg)
	}
	mustRun(t, h, "pause tea")
	if tm, _ := svc.Timer("tea"); tm.Status != model.TimerStatusPaused {
		t.Fatalf("expected paused, got %s", tm.Status)
	}
	mustRun(t, h, "reset tea")
	if msg := mustRun(t, h, "reset tea"); !strings.Contains(msg, "already reset") {
		t.Fatalf("expected idempotent reset reply, got %q", msg)
	}
	mustRun(t, h, "cancel tea")
	if len(svc.Timers()) != 0 {
		t.Fatalf("expected timer removed, got %d", len(svc.Timers()))
	}
}

func TestBoundUnknownTimerIsNotFound(t *testing.T) {
	_, h := newBoundService(t)
	for _, in := range []string{"pause ghost", "cancel ghost", "when-done ghost hi"} {
		_, err := Run(context.Background(), in, h)
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Code != ErrCodeNotFound {
			t.Fatalf("%q: expected not_found, got %v", in, err)
		}
		if !strings.Contains(ce.Message, "ghost") {
			t.Fatalf("%q: message should name the timer: %q", in, ce.Message)
		}
	}
}

func TestBoundPomodoroDefaults(t *testing.T) {
	svc, h := newBoundService(t)
	msg := mustRun(t, h, "pomodoro focus")
	if !strings.Contains(msg, "25m work, 5m break, 15m long break every 4 sessions") {
		t.Fatalf("unexpected reply: %q", msg)
	}
	tm, _ := svc.Timer("focus")
	if tm.Type != model.TimerTypePomodoro || tm.Status != model.TimerStatusRunning {
		t.Fatalf("unexpected pomodoro: %#v", tm)
	}
}

func TestBoundAutomations(t *testing.T) {
	svc, h := newBoundService(t)
	mustRun(t, h, "stopwatch run")
	mustRun(t, h, "remind weekly weekdays 7:00 standup")
	mustRun(t, h, "when-done run stop running via:speak")

	list := svc.Automations()
	if len(list) != 2 {
		t.Fatalf("expected 2 automations, got %d", len(list))
	}
	if list[0].Name != "standup on Mon,Tue,Wed,Thu,Fri at 07:00" || list[0].Action.Type != model.ActionReminder {
		t.Fatalf("unexpected weekly automation: %#v", list[0])
	}
	run, _ := svc.Timer("run")
	if list[1].TriggerConfig.TimerID != run.ID || list[1].Action.Type != model.ActionSpeak {
		t.Fatalf("unexpected timer automation: %#v", list[1])
	}

	if _, err := svc.PauseAutomation(context.Background(), list[0].ID, time.Hour); err != nil {
		t.Fatalf("pause: %v", err)
	}
	msg := mustRun(t, h, "automations")
	if !strings.Contains(msg, "paused until") || !strings.Contains(msg, "enabled") {
		t.Fatalf("unexpected listing: %q", msg)
	}
	mustRun(t, h, "cancel run")
	if msg := mustRun(t, h, "automations"); !strings.Contains(msg, "orphaned") {
		t.Fatalf("expected orphaned automation in listing: %q", msg)
	}
}

type refusingStart struct {
	*companion.Service
}

func (refusingStart) StartTimer(context.Context, string) (model.Timer, timers.Outcome, error) {
	return model.Timer{}, timers.Missing, model.ErrNotFound
}

func TestBoundCreateRelaysFailedStart(t *testing.T) {
	svc, _ := newBoundService(t)
	h := ForService(refusingStart{svc})

	for _, in := range []string{"timer 5m tea", "stopwatch run", "pomodoro focus"} {
		res, err := Run(context.Background(), in, h)
		if err == nil {
			t.Fatalf("%q: expected an error, got reply %q", in, res.Message)
		}
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Code != ErrCodeNotFound {
			t.Fatalf("%q: expected not_found command error, got %v", in, err)
		}
		if !strings.Contains(err.Error(), "could not start") {
			t.Fatalf("%q: error should say the start failed: %v", in, err)
		}
	}
	if got := len(svc.Timers()); got != 3 {
		t.Fatalf("timers should still be created, got %d", got)
	}
}
