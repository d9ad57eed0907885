package companion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/companiond/internal/actions"
	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/logging"
	"github.com/sandeepkv93/companiond/internal/messaging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/timers"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	names []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a model.Automation) actions.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, a.Name)
	return actions.Result{Type: a.Action.Type, Delivered: true, Text: a.Action.Message}
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, store storage.Store, clock *fakeClock, codec crypto.Codec) (*Service, *recordingDispatcher) {
	t.Helper()
	if codec == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		codec, err = crypto.NewCipher(key)
		if err != nil {
			t.Fatalf("new cipher: %v", err)
		}
	}
	d := &recordingDispatcher{}
	svc, err := New(Deps{
		Store:      store,
		Codec:      codec,
		Dispatcher: d,
		Bus:        events.NewBus(256),
		Logger:     logging.Discard(),
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, d
}

func TestNewRequiresStoreAndCodec(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New(Deps{Store: storage.NewMemoryStore()}); err == nil {
		t.Fatal("expected error without codec")
	}
}

func TestCountdownCompletionFiresDependentAutomation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	svc, d := newTestService(t, store, clock, nil)
	sub, cancel := svc.Bus().Subscribe()
	defer cancel()

	tm, err := svc.CreateTimer(ctx, "tea", model.TimerTypeCountdown, 3, timers.Options{})
	if err != nil {
		t.Fatalf("create timer: %v", err)
	}
	if _, err := svc.CreateAutomation(ctx, "tea ready", model.TriggerTimerComplete,
		model.TriggerConfig{TimerID: "tea"}, model.Action{Type: model.ActionNotify, Message: "tea is ready"}); err != nil {
		t.Fatalf("create automation: %v", err)
	}
	if _, out, err := svc.StartTimer(ctx, "tea"); err != nil || out != timers.Applied {
		t.Fatalf("start: %v %v", out, err)
	}

	var fired int
	for i := 0; i < 3; i++ {
		clock.now = clock.now.Add(time.Second)
		res := svc.Tick(ctx, clock.now, time.Second)
		fired += len(res.Firings)
	}
	if fired != 1 || d.count() != 1 {
		t.Fatalf("expected exactly one firing, got %d (dispatched %d)", fired, d.count())
	}

	got, _ := svc.Timer(tm.ID)
	if got.Status != model.TimerStatusCompleted || got.Remaining != 0 {
		t.Fatalf("unexpected timer after completion: %#v", got)
	}
	records, err := svc.Firings(ctx, storage.FiringListFilter{})
	if err != nil || len(records) != 1 || records[0].AutomationName != "tea ready" || !records[0].Delivered {
		t.Fatalf("unexpected firing log: %v %#v", err, records)
	}

	kinds := map[events.Kind]int{}
	for len(sub) > 0 {
		kinds[(<-sub).Kind]++
	}
	if kinds[events.TimerCompleted] != 1 || kinds[events.AutomationFired] != 1 || kinds[events.TimerCreated] != 1 {
		t.Fatalf("unexpected events: %v", kinds)
	}
}

func TestStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	key, _ := crypto.GenerateKey()
	codec, _ := crypto.NewCipher(key)

	svc, _ := newTestService(t, store, clock, codec)
	tm, _ := svc.CreateTimer(ctx, "laundry", model.TimerTypeCountdown, 600, timers.Options{})
	svc.StartTimer(ctx, tm.ID)
	svc.Tick(ctx, clock.now, 90*time.Second)
	a, err := svc.CreateAutomation(ctx, "laundry done", model.TriggerTimerComplete,
		model.TriggerConfig{TimerID: tm.ID}, model.Action{Type: model.ActionSpeak})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}
	if _, err := svc.Messaging().SendMessage(ctx, "cal-1", "hello", "me", messaging.SendOptions{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	restored, _ := newTestService(t, store, clock, codec)
	restored.Load(ctx)
	got, err := restored.Timer(tm.ID)
	if err != nil || got.Remaining != 510 || got.Status != model.TimerStatusRunning {
		t.Fatalf("timer not restored: %v %#v", err, got)
	}
	ra, err := restored.Automation(a.ID)
	if err != nil || ra.Orphaned || ra.TriggerConfig.TimerID != tm.ID {
		t.Fatalf("automation not restored: %v %#v", err, ra)
	}
	msgs, _ := restored.Messaging().Decrypt(ctx, "cal-1")
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Fatalf("conversation not restored: %#v", msgs)
	}
}

func TestLoadToleratesCorruptCollections(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Set(ctx, timersKey, []byte("not json"))
	store.Set(ctx, automationsKey, []byte(`[{"id":"a1","name":"x","trigger":"bogus"}]`))
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}

	svc, _ := newTestService(t, store, clock, nil)
	svc.Load(ctx)
	if len(svc.Timers()) != 0 || len(svc.Automations()) != 0 {
		t.Fatalf("expected empty state, got %d timers %d automations", len(svc.Timers()), len(svc.Automations()))
	}
}

func TestDeleteTimerOrphansAutomations(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, store, clock, nil)
	sub, cancel := svc.Bus().Subscribe()
	defer cancel()

	tm, _ := svc.CreateTimer(ctx, "oven", model.TimerTypeCountdown, 60, timers.Options{})
	a, _ := svc.CreateAutomation(ctx, "oven done", model.TriggerTimerComplete,
		model.TriggerConfig{TimerID: tm.ID}, model.Action{Type: model.ActionNotify})

	if _, err := svc.DeleteTimer(ctx, "oven"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := svc.Automation(a.ID)
	if !got.Orphaned || got.Enabled {
		t.Fatalf("expected orphaned and disabled automation: %#v", got)
	}
	if _, err := svc.SetAutomationEnabled(ctx, a.ID, true); err == nil {
		t.Fatal("expected enabling an orphaned automation to fail")
	}

	orphanEvents := 0
	for len(sub) > 0 {
		if (<-sub).Kind == events.AutomationOrphaned {
			orphanEvents++
		}
	}
	if orphanEvents != 1 {
		t.Fatalf("expected one orphan event, got %d", orphanEvents)
	}

	var stored []model.Automation
	if err := storage.LoadJSON(ctx, store, automationsKey, &stored); err != nil || len(stored) != 1 || !stored[0].Orphaned {
		t.Fatalf("orphan state not persisted: %v %#v", err, stored)
	}
	if _, err := svc.DeleteTimer(ctx, "oven"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDailyAutomationFiresOncePerDay(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 2, 9, 8, 59, 0, 0, time.UTC)}
	svc, d := newTestService(t, storage.NewMemoryStore(), clock, nil)
	if _, err := svc.CreateAutomation(ctx, "standup", model.TriggerDaily,
		model.TriggerConfig{Time: "9:00"}, model.Action{Type: model.ActionReminder, Message: "standup"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 180; i++ {
		svc.Tick(ctx, clock.now, time.Second)
		clock.now = clock.now.Add(time.Second)
	}
	if d.count() != 1 {
		t.Fatalf("expected one firing within the minute, got %d", d.count())
	}
	clock.now = time.Date(2026, 2, 10, 9, 0, 30, 0, time.UTC)
	svc.Tick(ctx, clock.now, time.Second)
	if d.count() != 2 {
		t.Fatalf("expected second firing next day, got %d", d.count())
	}
}

func TestPomodoroUsesConfiguredDefaults(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, storage.NewMemoryStore(), clock, nil)
	tm, err := svc.CreatePomodoro(context.Background(), "focus", model.PomodoroConfig{WorkDuration: 50 * 60})
	if err != nil {
		t.Fatalf("create pomodoro: %v", err)
	}
	cfg := tm.Pomodoro
	if cfg.WorkDuration != 3000 || cfg.BreakDuration != 300 || cfg.LongBreakDuration != 900 || cfg.SessionsBeforeLongBreak != 4 {
		t.Fatalf("unexpected pomodoro config: %#v", cfg)
	}
	if tm.Duration != 3000 {
		t.Fatalf("expected work phase duration, got %d", tm.Duration)
	}
}

func TestLifecycleUnknownTimer(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, storage.NewMemoryStore(), clock, nil)
	if _, out, err := svc.PauseTimer(context.Background(), "ghost"); !errors.Is(err, model.ErrNotFound) || out != timers.Missing {
		t.Fatalf("expected missing timer, got %v %v", out, err)
	}
}
