package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/companiond/internal/automation"
	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/messaging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/timers"
)

const (
	timersKey      = "timers"
	automationsKey = "automations"

	leaseTTL = 30 * time.Second
)

type Deps struct {
	Store      storage.Store
	Codec      crypto.Codec
	Dispatcher automation.Dispatcher
	Bus        *events.Bus
	Logger     *slog.Logger
	Now        func() time.Time
	// Pomodoro fills zero fields of pomodoro requests.
	Pomodoro model.PomodoroConfig
}

// Service is the single owner of timers, automations and conversations.
// Every mutation is written to the store before the call returns; a failed
// write is logged, the collection stays dirty and the in-memory state stays
// authoritative. Processes sharing a database coordinate through Claim.
type Service struct {
	store    storage.Store
	timers   *timers.Engine
	rules    *automation.Engine
	messages *messaging.Service
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time
	pomodoro model.PomodoroConfig
	holder   string

	// persistMu serializes snapshot writes and guards the fields below.
	persistMu sync.Mutex
	dirty     map[string]bool
	leased    bool
	fenced    bool
	renewedAt time.Time
}

type TickResult struct {
	Report  timers.TickReport
	Firings []automation.Firing
}

func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("companion: store is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("companion: codec is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewBus(64)
	}

	te := timers.NewEngine(timers.WithClock(func() time.Time { return now().UTC() }))
	ae := automation.NewEngine(deps.Dispatcher,
		automation.WithClock(now),
		automation.WithTimerLookup(te.Exists),
		automation.WithLogger(logger),
	)
	te.Subscribe(ae)

	msgs, err := messaging.NewService(deps.Codec, deps.Store,
		messaging.WithClock(func() time.Time { return now().UTC() }),
		messaging.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:    deps.Store,
		timers:   te,
		rules:    ae,
		messages: msgs,
		bus:      bus,
		logger:   logger,
		now:      now,
		pomodoro: withPomodoroDefaults(deps.Pomodoro, model.PomodoroConfig{}),
		holder:   uuid.NewString(),
		dirty:    make(map[string]bool),
	}, nil
}

// Load restores timers and then automations, so that timer references can
// be checked. Missing or corrupt collections start empty.
func (s *Service) Load(ctx context.Context) {
	var ts []model.Timer
	if s.loadCollection(ctx, timersKey, &ts) {
		n, err := s.timers.Load(ts)
		if err != nil {
			s.logger.Warn("skipped stored timers", "loaded", n, "stored", len(ts), "error", err)
		}
	}
	var as []model.Automation
	if s.loadCollection(ctx, automationsKey, &as) {
		n, err := s.rules.Load(as)
		if err != nil {
			s.logger.Warn("skipped stored automations", "loaded", n, "stored", len(as), "error", err)
		}
	}
}

func (s *Service) loadCollection(ctx context.Context, key string, dst any) bool {
	err := storage.LoadJSON(ctx, s.store, key, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrNotFound):
		return false
	default:
		s.logger.Warn("load collection failed, starting empty", "key", key, "error", err)
		return false
	}
}

// Claim takes the store's writer lease for this service. While it is held,
// Claim on any other Service sharing the database fails with
// storage.ErrLeaseHeld. Tick renews the lease; Release gives it up. Claim
// before Load so the loaded snapshot is the one this service will extend.
func (s *Service) Claim(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	now := s.now()
	if err := s.store.AcquireLease(ctx, s.holder, os.Getpid(), now, leaseTTL); err != nil {
		return err
	}
	s.leased, s.fenced, s.renewedAt = true, false, now
	return nil
}

// Release flushes dirty collections and gives up the writer lease.
func (s *Service) Release(ctx context.Context) {
	s.Flush(ctx)
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if !s.leased {
		return
	}
	s.leased = false
	if err := s.store.ReleaseLease(ctx, s.holder); err != nil {
		s.logger.Warn("release writer lease failed", "error", err)
	}
}

// LeaseLost reports whether another process took the lease over after it
// expired. A fenced service no longer writes timers or automations.
func (s *Service) LeaseLost() bool {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	return s.fenced
}

func (s *Service) renewLease(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	now := s.now()
	if !s.leased || s.fenced || now.Sub(s.renewedAt) < leaseTTL/3 {
		return
	}
	err := s.store.AcquireLease(ctx, s.holder, os.Getpid(), now, leaseTTL)
	switch {
	case err == nil:
		s.renewedAt = now
	case errors.Is(err, storage.ErrLeaseHeld):
		s.fenced = true
		s.logger.Error("writer lease lost to another process, writes stopped", "error", err)
	default:
		s.logger.Warn("renew writer lease failed", "error", err)
	}
}

func (s *Service) Bus() *events.Bus                { return s.bus }
func (s *Service) Messaging() *messaging.Service   { return s.messages }
func (s *Service) Timers() []model.Timer           { return s.timers.List() }
func (s *Service) Automations() []model.Automation { return s.rules.List() }

func (s *Service) Timer(ref string) (model.Timer, error) {
	return s.timers.Resolve(ref)
}

func (s *Service) Automation(id string) (model.Automation, error) {
	return s.rules.Get(id)
}

func (s *Service) CreateTimer(ctx context.Context, name string, typ model.TimerType, durationSeconds int, opts timers.Options) (model.Timer, error) {
	tm, err := s.timers.Create(name, typ, durationSeconds, opts)
	if err != nil {
		return model.Timer{}, err
	}
	s.saveTimers(ctx)
	s.publish(events.Event{Kind: events.TimerCreated, TimerID: tm.ID, Detail: tm.Name})
	return tm, nil
}

// CreatePomodoro fills zero durations from the configured defaults.
func (s *Service) CreatePomodoro(ctx context.Context, name string, cfg model.PomodoroConfig) (model.Timer, error) {
	tm, err := s.timers.CreatePomodoro(name, withPomodoroDefaults(cfg, s.pomodoro))
	if err != nil {
		return model.Timer{}, err
	}
	s.saveTimers(ctx)
	s.publish(events.Event{Kind: events.TimerCreated, TimerID: tm.ID, Detail: tm.Name})
	return tm, nil
}

func (s *Service) StartTimer(ctx context.Context, ref string) (model.Timer, timers.Outcome, error) {
	return s.lifecycle(ctx, ref, s.timers.Start)
}

func (s *Service) PauseTimer(ctx context.Context, ref string) (model.Timer, timers.Outcome, error) {
	return s.lifecycle(ctx, ref, s.timers.Pause)
}

func (s *Service) ResetTimer(ctx context.Context, ref string) (model.Timer, timers.Outcome, error) {
	return s.lifecycle(ctx, ref, s.timers.Reset)
}

// lifecycle resolves ref by id or name. An unknown ref is an error here so
// the caller can relay it; the engine itself treats it as a no-op.
func (s *Service) lifecycle(ctx context.Context, ref string, op func(string) (model.Timer, timers.Outcome)) (model.Timer, timers.Outcome, error) {
	target, err := s.timers.Resolve(ref)
	if err != nil {
		return model.Timer{}, timers.Missing, err
	}
	tm, out := op(target.ID)
	if out == timers.Applied {
		s.saveTimers(ctx)
		s.publish(events.Event{Kind: events.TimerUpdated, TimerID: tm.ID, Detail: string(tm.Status)})
	}
	return tm, out, nil
}

// DeleteTimer removes the timer; dependent automations are orphaned, not
// deleted.
func (s *Service) DeleteTimer(ctx context.Context, ref string) (model.Timer, error) {
	target, err := s.timers.Resolve(ref)
	if err != nil {
		return model.Timer{}, err
	}
	if !s.timers.Delete(target.ID) {
		return model.Timer{}, fmt.Errorf("%w: timer %q", model.ErrNotFound, ref)
	}
	s.saveTimers(ctx)
	s.publish(events.Event{Kind: events.TimerDeleted, TimerID: target.ID, Detail: target.Name})

	orphaned := 0
	for _, a := range s.rules.Orphaned() {
		if a.TriggerConfig.TimerID != target.ID {
			continue
		}
		orphaned++
		s.publish(events.Event{Kind: events.AutomationOrphaned, AutomationID: a.ID, TimerID: target.ID, Detail: a.Name})
	}
	if orphaned > 0 {
		s.saveAutomations(ctx)
	}
	return target, nil
}

func (s *Service) CreateAutomation(ctx context.Context, name string, trigger model.TriggerKind, cfg model.TriggerConfig, action model.Action) (model.Automation, error) {
	if trigger == model.TriggerTimerComplete && cfg.TimerID != "" {
		if tm, err := s.timers.Resolve(cfg.TimerID); err == nil {
			cfg.TimerID = tm.ID
		}
	}
	a, err := s.rules.Create(name, trigger, cfg, action)
	if err != nil {
		return model.Automation{}, err
	}
	s.saveAutomations(ctx)
	s.publish(events.Event{Kind: events.AutomationChanged, AutomationID: a.ID, Detail: "created"})
	return a, nil
}

func (s *Service) ToggleAutomation(ctx context.Context, id string) (model.Automation, error) {
	return s.mutateAutomation(ctx, "toggled", func() (model.Automation, error) { return s.rules.Toggle(id) })
}

func (s *Service) SetAutomationEnabled(ctx context.Context, id string, enabled bool) (model.Automation, error) {
	return s.mutateAutomation(ctx, "enabled", func() (model.Automation, error) { return s.rules.SetEnabled(id, enabled) })
}

func (s *Service) PauseAutomation(ctx context.Context, id string, d time.Duration) (model.Automation, error) {
	return s.mutateAutomation(ctx, "paused", func() (model.Automation, error) { return s.rules.PauseFor(id, d) })
}

func (s *Service) ResumeAutomation(ctx context.Context, id string) (model.Automation, error) {
	return s.mutateAutomation(ctx, "resumed", func() (model.Automation, error) { return s.rules.Resume(id) })
}

func (s *Service) DeleteAutomation(ctx context.Context, id string) error {
	if err := s.rules.Delete(id); err != nil {
		return err
	}
	s.saveAutomations(ctx)
	s.publish(events.Event{Kind: events.AutomationDeleted, AutomationID: id})
	return nil
}

func (s *Service) mutateAutomation(ctx context.Context, detail string, op func() (model.Automation, error)) (model.Automation, error) {
	a, err := op()
	if err != nil {
		return a, err
	}
	s.saveAutomations(ctx)
	s.publish(events.Event{Kind: events.AutomationChanged, AutomationID: a.ID, Detail: detail})
	return a, nil
}

// Tick advances running timers by elapsed and then evaluates automations
// against now. Callers must not overlap ticks.
func (s *Service) Tick(ctx context.Context, now time.Time, elapsed time.Duration) TickResult {
	s.renewLease(ctx)
	report := s.timers.Tick(elapsed)
	firings := s.rules.Evaluate(ctx, now)

	if report.Running > 0 {
		s.saveTimers(ctx)
	}
	for _, c := range report.Completions {
		s.publish(events.Event{Kind: events.TimerCompleted, TimerID: c.TimerID, Detail: c.Name})
	}
	for _, pc := range report.PhaseChanges {
		s.publish(events.Event{Kind: events.TimerPhaseChanged, TimerID: pc.TimerID, Detail: pc.Phase})
	}
	if len(firings) > 0 {
		s.saveAutomations(ctx)
		for _, f := range firings {
			s.recordFiring(ctx, f)
			s.publish(events.Event{Kind: events.AutomationFired, AutomationID: f.Automation.ID, Detail: f.Result.Text})
		}
	}
	return TickResult{Report: report, Firings: firings}
}

func (s *Service) SendMessage(ctx context.Context, calendarID, text, sender string, opts messaging.SendOptions) (model.Message, error) {
	return s.sent(s.messages.SendMessage(ctx, calendarID, text, sender, opts))
}

func (s *Service) SendVoice(ctx context.Context, calendarID, sender string, audio []byte, mimeType string, duration time.Duration) (model.Message, error) {
	return s.sent(s.messages.SendVoice(ctx, calendarID, sender, audio, mimeType, duration))
}

func (s *Service) SendFileAttachment(ctx context.Context, calendarID, base64Data, fileName, description, sender string, encrypt bool, src messaging.Source) (model.Message, error) {
	return s.sent(s.messages.SendFileAttachment(ctx, calendarID, base64Data, fileName, description, sender, encrypt, src))
}

func (s *Service) ClearConversation(ctx context.Context, calendarID string) error {
	if err := s.messages.Clear(ctx, calendarID); err != nil {
		return err
	}
	s.publish(events.Event{Kind: events.ConversationCleared, CalendarID: calendarID})
	return nil
}

func (s *Service) sent(msg model.Message, err error) (model.Message, error) {
	if err != nil {
		return msg, err
	}
	s.publish(events.Event{Kind: events.MessageSent, CalendarID: msg.CalendarID, Detail: string(msg.Kind)})
	return msg, nil
}

func (s *Service) Firings(ctx context.Context, filter storage.FiringListFilter) ([]storage.FiringRecord, error) {
	return s.store.ListFirings(ctx, filter)
}

// Flush retries collections whose last write failed. A service that only
// read never writes here.
func (s *Service) Flush(ctx context.Context) {
	s.persistMu.Lock()
	timersDirty, automationsDirty := s.dirty[timersKey], s.dirty[automationsKey]
	s.persistMu.Unlock()
	if timersDirty {
		s.saveTimers(ctx)
	}
	if automationsDirty {
		s.saveAutomations(ctx)
	}
}

func (s *Service) recordFiring(ctx context.Context, f automation.Firing) {
	rec := storage.FiringRecord{
		ID:             uuid.NewString(),
		AutomationID:   f.Automation.ID,
		AutomationName: f.Automation.Name,
		ActionType:     string(f.Automation.Action.Type),
		Delivered:      f.Result.Delivered,
		SMSStatus:      string(f.Result.SMSStatus),
		Detail:         f.Result.Detail,
		FiredAt:        f.At,
	}
	if err := s.store.AppendFiring(ctx, rec); err != nil {
		s.logger.Error("record firing failed", "automation_id", rec.AutomationID, "error", err)
	}
}

func (s *Service) saveTimers(ctx context.Context) {
	s.persist(ctx, timersKey, func() any { return s.timers.List() })
}

func (s *Service) saveAutomations(ctx context.Context) {
	s.persist(ctx, automationsKey, func() any { return s.rules.List() })
}

// persist takes the snapshot and writes it under one lock, so a slower
// writer can never store an older snapshot over a newer one.
func (s *Service) persist(ctx context.Context, key string, snapshot func() any) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.fenced {
		s.dirty[key] = true
		s.logger.Error("persist skipped, writer lease lost", "key", key)
		return
	}
	if err := storage.SaveJSON(ctx, s.store, key, snapshot()); err != nil {
		s.dirty[key] = true
		s.logger.Error("persist failed", "key", key, "error", err)
		return
	}
	delete(s.dirty, key)
}

func (s *Service) publish(ev events.Event) {
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	s.bus.Publish(ev)
}

// withPomodoroDefaults fills zero fields of cfg from base, falling back to
// 25/5/15 minutes and a long break every 4 sessions.
func withPomodoroDefaults(cfg, base model.PomodoroConfig) model.PomodoroConfig {
	pick := func(v, b, d int) int {
		if v > 0 {
			return v
		}
		if b > 0 {
			return b
		}
		return d
	}
	cfg.WorkDuration = pick(cfg.WorkDuration, base.WorkDuration, 25*60)
	cfg.BreakDuration = pick(cfg.BreakDuration, base.BreakDuration, 5*60)
	cfg.LongBreakDuration = pick(cfg.LongBreakDuration, base.LongBreakDuration, 15*60)
	cfg.SessionsBeforeLongBreak = pick(cfg.SessionsBeforeLongBreak, base.SessionsBeforeLongBreak, 4)
	return cfg
}
