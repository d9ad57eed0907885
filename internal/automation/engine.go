package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/companiond/internal/actions"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/timers"
)

var (
	ErrOrphaned     = errors.New("automation: referenced timer no longer exists")
	ErrInvalidPause = errors.New("automation: pause duration must be positive")
	errNoDispatcher = fmt.Errorf("%w: no action dispatcher configured", actions.ErrUnavailable)
)

const minuteLayout = "2006-01-02 15:04"

// Dispatcher runs an automation's action. It must not panic; failures are
// reported inside the result.
type Dispatcher interface {
	Dispatch(ctx context.Context, a model.Automation) actions.Result
}

type Cause string

const (
	CauseClock         Cause = "clock"
	CauseTimerComplete Cause = "timer_complete"
)

type Firing struct {
	Automation model.Automation
	Cause      Cause
	At         time.Time
	Result     actions.Result
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithTimerLookup lets Create reject timer_complete rules that reference a
// timer that does not exist.
func WithTimerLookup(exists func(string) bool) Option {
	return func(e *Engine) { e.timerExists = exists }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type Engine struct {
	mu          sync.Mutex
	items       map[string]*model.Automation
	order       []string
	pending     []timers.Completion
	dispatcher  Dispatcher
	timerExists func(string) bool
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

func NewEngine(dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		items:      make(map[string]*model.Automation),
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now() },
		newID:      uuid.NewString,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Create(name string, trigger model.TriggerKind, cfg model.TriggerConfig, action model.Action) (model.Automation, error) {
	if !trigger.IsValid() {
		return model.Automation{}, model.Invalid("trigger", fmt.Errorf("%w: %q", model.ErrInvalidTrigger, trigger))
	}
	cfg = normalizeConfig(trigger, cfg)
	if err := model.ValidateTrigger(trigger, cfg, e.timerExists); err != nil {
		return model.Automation{}, model.Invalid("triggerConfig", err)
	}
	if err := action.Validate(); err != nil {
		return model.Automation{}, model.Invalid("action", err)
	}
	a := model.Automation{
		ID:            e.newID(),
		Name:          strings.TrimSpace(name),
		Enabled:       true,
		Trigger:       trigger,
		TriggerConfig: cfg,
		Action:        action,
		CreatedAt:     e.now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(a)
	return cloneAutomation(a), nil
}

// Toggle flips enabled. Enabling clears any scheduled resume; orphaned
// automations cannot be enabled.
func (e *Engine) Toggle(id string) (model.Automation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.items[id]
	if !ok {
		return model.Automation{}, notFound(id)
	}
	return e.setEnabledLocked(a, !a.Enabled)
}

func (e *Engine) SetEnabled(id string, enabled bool) (model.Automation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.items[id]
	if !ok {
		return model.Automation{}, notFound(id)
	}
	if a.Enabled == enabled {
		return cloneAutomation(*a), nil
	}
	return e.setEnabledLocked(a, enabled)
}

func (e *Engine) setEnabledLocked(a *model.Automation, enabled bool) (model.Automation, error) {
	if enabled && a.Orphaned {
		return cloneAutomation(*a), fmt.Errorf("%w: %q", ErrOrphaned, a.TriggerConfig.TimerID)
	}
	a.Enabled = enabled
	if enabled {
		a.PausedUntil = nil
	}
	return cloneAutomation(*a), nil
}

// PauseFor suppresses firing until now+d. The resume is evaluated by the
// same tick loop, so it survives a restart once persisted.
func (e *Engine) PauseFor(id string, d time.Duration) (model.Automation, error) {
	if d <= 0 {
		return model.Automation{}, model.Invalid("duration", fmt.Errorf("%w: %s", ErrInvalidPause, d))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.items[id]
	if !ok {
		return model.Automation{}, notFound(id)
	}
	until := e.now().Add(d).UTC()
	a.PausedUntil = &until
	return cloneAutomation(*a), nil
}

func (e *Engine) Resume(id string) (model.Automation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.items[id]
	if !ok {
		return model.Automation{}, notFound(id)
	}
	a.PausedUntil = nil
	return cloneAutomation(*a), nil
}

func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.items[id]; !ok {
		return notFound(id)
	}
	delete(e.items, id)
	e.order = slices.DeleteFunc(e.order, func(v string) bool { return v == id })
	return nil
}

// TimerCompleted queues a completion edge; the next Evaluate consumes it.
func (e *Engine) TimerCompleted(c timers.Completion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, c)
}

// TimerDeleted marks dependants orphaned and disables them. They stay
// listed so the user can see and remove them.
func (e *Engine) TimerDeleted(timerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		a := e.items[id]
		if a.Trigger != model.TriggerTimerComplete || a.TriggerConfig.TimerID != timerID {
			continue
		}
		a.Orphaned = true
		a.Enabled = false
		e.logger.Warn("automation orphaned", "automation_id", a.ID, "timer_id", timerID)
	}
	e.pending = slices.DeleteFunc(e.pending, func(c timers.Completion) bool { return c.TimerID == timerID })
}

// Orphaned lists automations whose timer was deleted.
func (e *Engine) Orphaned() []model.Automation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Automation, 0)
	for _, id := range e.order {
		if a := e.items[id]; a.Orphaned {
			out = append(out, cloneAutomation(*a))
		}
	}
	return out
}

// Evaluate fires every due automation once. Clock triggers match on the
// minute of now in now's location and are guarded against firing twice in
// the same minute; timer_complete triggers fire once per queued edge.
// lastRun is recorded whether or not the action succeeded.
func (e *Engine) Evaluate(ctx context.Context, now time.Time) []Firing {
	type due struct {
		snapshot model.Automation
		cause    Cause
	}

	e.mu.Lock()
	edges := e.pending
	e.pending = nil

	var fire []due
	for _, id := range e.order {
		a := e.items[id]
		if a.PausedUntil != nil && !now.Before(*a.PausedUntil) {
			a.PausedUntil = nil
		}
		if !a.Enabled || a.Orphaned || a.IsPaused(now) {
			continue
		}

		var cause Cause
		times := 1
		switch {
		case a.Trigger == model.TriggerTimerComplete:
			times = countEdges(edges, a.TriggerConfig.TimerID)
			if times == 0 {
				continue
			}
			cause = CauseTimerComplete
		case a.Trigger.IsClockBased():
			if !clockMatches(*a, now) || firedThisMinute(a.LastRun, now) {
				continue
			}
			cause = CauseClock
		default:
			continue
		}

		at := now
		a.LastRun = &at
		if a.Trigger == model.TriggerTime {
			a.Enabled = false
		}
		for i := 0; i < times; i++ {
			fire = append(fire, due{snapshot: cloneAutomation(*a), cause: cause})
		}
	}
	e.mu.Unlock()

	out := make([]Firing, 0, len(fire))
	for _, d := range fire {
		var res actions.Result
		if e.dispatcher == nil {
			res = actions.Result{Type: d.snapshot.Action.Type, Err: errNoDispatcher, Detail: errNoDispatcher.Error()}
		} else {
			res = e.dispatcher.Dispatch(ctx, d.snapshot)
		}
		e.logger.Info("automation fired",
			"automation_id", d.snapshot.ID,
			"name", d.snapshot.Name,
			"cause", d.cause,
			"delivered", res.Delivered,
		)
		out = append(out, Firing{Automation: d.snapshot, Cause: d.cause, At: now, Result: res})
	}
	return out
}

func (e *Engine) Get(id string) (model.Automation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.items[id]
	if !ok {
		return model.Automation{}, notFound(id)
	}
	return cloneAutomation(*a), nil
}

func (e *Engine) List() []model.Automation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Automation, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, cloneAutomation(*e.items[id]))
	}
	return out
}

// Load replaces state with a restored collection. timer_complete rules
// whose timer is gone are kept but orphaned.
func (e *Engine) Load(items []model.Automation) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = make(map[string]*model.Automation, len(items))
	e.order = e.order[:0]
	e.pending = nil

	var errs []error
	for _, item := range items {
		if err := item.Validate(nil); err != nil {
			errs = append(errs, fmt.Errorf("automation %q: %w", item.ID, err))
			continue
		}
		if _, dup := e.items[item.ID]; dup {
			errs = append(errs, fmt.Errorf("automation %q: duplicate id", item.ID))
			continue
		}
		if item.Trigger == model.TriggerTimerComplete && e.timerExists != nil && !e.timerExists(item.TriggerConfig.TimerID) {
			item.Orphaned = true
			item.Enabled = false
		}
		e.insertLocked(item)
	}
	return len(e.order), errors.Join(errs...)
}

func (e *Engine) insertLocked(a model.Automation) {
	stored := cloneAutomation(a)
	e.items[stored.ID] = &stored
	e.order = append(e.order, stored.ID)
}

func normalizeConfig(trigger model.TriggerKind, cfg model.TriggerConfig) model.TriggerConfig {
	cfg.TimerID = strings.TrimSpace(cfg.TimerID)
	if trigger.IsClockBased() {
		if norm, err := model.NormalizeClock(cfg.Time); err == nil {
			cfg.Time = norm
		}
	}
	if len(cfg.DayOfWeek) > 0 {
		days := slices.Clone(cfg.DayOfWeek)
		slices.Sort(days)
		cfg.DayOfWeek = days
	}
	return cfg
}

func clockMatches(a model.Automation, now time.Time) bool {
	hour, minute, err := model.ParseClock(a.TriggerConfig.Time)
	if err != nil {
		return false
	}
	if now.Hour() != hour || now.Minute() != minute {
		return false
	}
	if a.Trigger == model.TriggerWeekly {
		return slices.Contains(a.TriggerConfig.DayOfWeek, int(now.Weekday()))
	}
	return true
}

func firedThisMinute(lastRun *time.Time, now time.Time) bool {
	if lastRun == nil {
		return false
	}
	return lastRun.In(now.Location()).Format(minuteLayout) == now.Format(minuteLayout)
}

func countEdges(edges []timers.Completion, timerID string) int {
	n := 0
	for _, c := range edges {
		if c.TimerID == timerID {
			n++
		}
	}
	return n
}

func notFound(id string) error {
	return fmt.Errorf("%w: automation %q", model.ErrNotFound, id)
}

func cloneAutomation(a model.Automation) model.Automation {
	a.TriggerConfig.DayOfWeek = slices.Clone(a.TriggerConfig.DayOfWeek)
	if a.LastRun != nil {
		v := *a.LastRun
		a.LastRun = &v
	}
	if a.PausedUntil != nil {
		v := *a.PausedUntil
		a.PausedUntil = &v
	}
	return a
}
