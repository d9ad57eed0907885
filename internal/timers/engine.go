package timers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/companiond/internal/model"
)

// Outcome reports what a lifecycle call did. Missing ids and calls that
// would not change state are not errors.
type Outcome int

const (
	Applied Outcome = iota
	NoOp
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoOp:
		return "no-op"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Options struct {
	AutoRestart bool
}

// Completion is emitted when a countdown reaches zero or a pomodoro work
// phase ends.
type Completion struct {
	TimerID string
	Name    string
	Type    model.TimerType
	Session int
	At      time.Time
}

type PhaseChange struct {
	TimerID  string
	Phase    string
	Session  int
	Duration int
	Paused   bool
}

type TickReport struct {
	Running      int
	Completions  []Completion
	PhaseChanges []PhaseChange
}

// Listener receives engine signals after the engine lock is released, so
// implementations may call back into the engine.
type Listener interface {
	TimerCompleted(Completion)
	TimerDeleted(timerID string)
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

type Engine struct {
	mu        sync.Mutex
	timers    map[string]*model.Timer
	order     []string
	carry     map[string]time.Duration
	listeners []Listener
	now       func() time.Time
	newID     func() string
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timers: make(map[string]*model.Timer),
		carry:  make(map[string]time.Duration),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Subscribe(l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Create builds an idle timer. Empty names are accepted; the caller decides
// whether that is acceptable.
func (e *Engine) Create(name string, typ model.TimerType, durationSeconds int, opts Options) (model.Timer, error) {
	if typ == model.TimerTypePomodoro {
		return model.Timer{}, model.Invalid("type", fmt.Errorf("%w: use CreatePomodoro", model.ErrInvalidTimerType))
	}
	if !typ.IsValid() {
		return model.Timer{}, model.Invalid("type", fmt.Errorf("%w: %q", model.ErrInvalidTimerType, typ))
	}
	if durationSeconds < 0 {
		return model.Timer{}, model.Invalid("duration", fmt.Errorf("%w: %d", model.ErrInvalidDuration, durationSeconds))
	}
	tm := model.Timer{
		ID:          e.newID(),
		Name:        strings.TrimSpace(name),
		Type:        typ,
		Duration:    durationSeconds,
		Remaining:   durationSeconds,
		Status:      model.TimerStatusIdle,
		AutoRestart: opts.AutoRestart,
		CreatedAt:   e.now(),
	}
	if typ == model.TimerTypeStopwatch {
		tm.Duration = 0
		tm.Remaining = 0
		tm.AutoRestart = false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(tm)
	return cloneTimer(tm), nil
}

func (e *Engine) CreatePomodoro(name string, cfg model.PomodoroConfig) (model.Timer, error) {
	cfg.CurrentSession = 0
	cfg.IsBreak = false
	if err := cfg.Validate(); err != nil {
		return model.Timer{}, model.Invalid("pomodoroConfig", err)
	}
	tm := model.Timer{
		ID:          e.newID(),
		Name:        strings.TrimSpace(name),
		Type:        model.TimerTypePomodoro,
		Duration:    cfg.WorkDuration,
		Remaining:   cfg.WorkDuration,
		Status:      model.TimerStatusIdle,
		AutoRestart: cfg.AutoRestart,
		CreatedAt:   e.now(),
		Pomodoro:    &cfg,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(tm)
	return cloneTimer(tm), nil
}

// Start runs the timer. A completed timer is reset before it restarts.
func (e *Engine) Start(id string) (model.Timer, Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tm, ok := e.timers[id]
	if !ok {
		return model.Timer{}, Missing
	}
	if tm.Status == model.TimerStatusRunning {
		return cloneTimer(*tm), NoOp
	}
	if tm.Status == model.TimerStatusCompleted {
		e.resetLocked(tm)
	}
	tm.Status = model.TimerStatusRunning
	return cloneTimer(*tm), Applied
}

func (e *Engine) Pause(id string) (model.Timer, Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tm, ok := e.timers[id]
	if !ok {
		return model.Timer{}, Missing
	}
	if tm.Status != model.TimerStatusRunning {
		return cloneTimer(*tm), NoOp
	}
	tm.Status = model.TimerStatusPaused
	return cloneTimer(*tm), Applied
}

// Reset is idempotent: a second call reports NoOp and leaves state as is.
func (e *Engine) Reset(id string) (model.Timer, Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tm, ok := e.timers[id]
	if !ok {
		return model.Timer{}, Missing
	}
	before := cloneTimer(*tm)
	e.resetLocked(tm)
	tm.Status = model.TimerStatusIdle
	if sameState(before, *tm) {
		return cloneTimer(*tm), NoOp
	}
	return cloneTimer(*tm), Applied
}

// Delete removes the timer and notifies listeners. It reports whether a
// timer was removed.
func (e *Engine) Delete(id string) bool {
	e.mu.Lock()
	if _, ok := e.timers[id]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.timers, id)
	delete(e.carry, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		l.TimerDeleted(id)
	}
	return true
}

// Tick advances every running timer by elapsed. The engine never schedules
// itself; a driver calls Tick at a fixed interval. Fractions of a second
// are carried per timer until they add up to a whole second.
func (e *Engine) Tick(elapsed time.Duration) TickReport {
	var report TickReport
	if elapsed < 0 {
		return report
	}

	e.mu.Lock()
	at := e.now()
	for _, id := range e.order {
		tm := e.timers[id]
		if tm.Status != model.TimerStatusRunning {
			continue
		}
		report.Running++

		total := e.carry[id] + elapsed
		whole := int(total / time.Second)
		e.carry[id] = total - time.Duration(whole)*time.Second

		switch tm.Type {
		case model.TimerTypeStopwatch:
			tm.Remaining += whole
		case model.TimerTypeCountdown:
			tm.Remaining -= whole
			if tm.Remaining > 0 {
				continue
			}
			e.carry[id] = 0
			report.Completions = append(report.Completions, Completion{
				TimerID: tm.ID, Name: tm.Name, Type: tm.Type, At: at,
			})
			if tm.AutoRestart {
				tm.Remaining = tm.Duration
			} else {
				tm.Remaining = 0
				tm.Status = model.TimerStatusCompleted
			}
		case model.TimerTypePomodoro:
			tm.Remaining -= whole
			if tm.Remaining > 0 {
				continue
			}
			e.carry[id] = 0
			change, done := advancePhase(tm)
			if done != nil {
				done.At = at
				report.Completions = append(report.Completions, *done)
			}
			report.PhaseChanges = append(report.PhaseChanges, change)
		}
	}
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, c := range report.Completions {
		for _, l := range listeners {
			l.TimerCompleted(c)
		}
	}
	return report
}

// advancePhase moves a pomodoro whose phase just ran out into the next
// phase. Leftover elapsed time past the boundary is discarded.
func advancePhase(tm *model.Timer) (PhaseChange, *Completion) {
	cfg := tm.Pomodoro
	var done *Completion
	if !cfg.IsBreak {
		cfg.CurrentSession++
		cfg.IsBreak = true
		tm.Duration = cfg.NextBreakDuration()
		done = &Completion{TimerID: tm.ID, Name: tm.Name, Type: tm.Type, Session: cfg.CurrentSession}
	} else {
		cfg.IsBreak = false
		tm.Duration = cfg.WorkDuration
	}
	tm.Remaining = tm.Duration
	if !cfg.AutoRestart {
		tm.Status = model.TimerStatusPaused
	}
	return PhaseChange{
		TimerID:  tm.ID,
		Phase:    cfg.PhaseName(),
		Session:  cfg.CurrentSession,
		Duration: tm.Duration,
		Paused:   tm.Status == model.TimerStatusPaused,
	}, done
}

func (e *Engine) Get(id string) (model.Timer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tm, ok := e.timers[id]
	if !ok {
		return model.Timer{}, fmt.Errorf("%w: timer %q", model.ErrNotFound, id)
	}
	return cloneTimer(*tm), nil
}

func (e *Engine) Exists(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[id]
	return ok
}

// FindByName matches case-insensitively and returns the oldest match.
func (e *Engine) FindByName(name string) (model.Timer, bool) {
	want := strings.TrimSpace(name)
	if want == "" {
		return model.Timer{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		tm := e.timers[id]
		if strings.EqualFold(tm.Name, want) {
			return cloneTimer(*tm), true
		}
	}
	return model.Timer{}, false
}

// Resolve accepts either an id or a name.
func (e *Engine) Resolve(ref string) (model.Timer, error) {
	if tm, err := e.Get(strings.TrimSpace(ref)); err == nil {
		return tm, nil
	}
	if tm, ok := e.FindByName(ref); ok {
		return tm, nil
	}
	return model.Timer{}, fmt.Errorf("%w: no timer named or identified by %q", model.ErrNotFound, ref)
}

// List returns timers in creation order.
func (e *Engine) List() []model.Timer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Timer, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, cloneTimer(*e.timers[id]))
	}
	return out
}

// Load replaces the engine state with a restored collection. Entries that
// fail validation or repeat an id are skipped; the returned error joins
// the reasons.
func (e *Engine) Load(items []model.Timer) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timers = make(map[string]*model.Timer, len(items))
	e.carry = make(map[string]time.Duration, len(items))
	e.order = e.order[:0]

	var errs []error
	for _, item := range items {
		if err := item.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("timer %q: %w", item.ID, err))
			continue
		}
		if _, dup := e.timers[item.ID]; dup {
			errs = append(errs, fmt.Errorf("timer %q: duplicate id", item.ID))
			continue
		}
		e.insertLocked(item)
	}
	return len(e.order), errors.Join(errs...)
}

func (e *Engine) insertLocked(tm model.Timer) {
	stored := cloneTimer(tm)
	e.timers[stored.ID] = &stored
	e.order = append(e.order, stored.ID)
}

func (e *Engine) resetLocked(tm *model.Timer) {
	e.carry[tm.ID] = 0
	switch tm.Type {
	case model.TimerTypeStopwatch:
		tm.Remaining = 0
	case model.TimerTypePomodoro:
		tm.Pomodoro.CurrentSession = 0
		tm.Pomodoro.IsBreak = false
		tm.Duration = tm.Pomodoro.WorkDuration
		tm.Remaining = tm.Duration
	default:
		tm.Remaining = tm.Duration
	}
}

func cloneTimer(tm model.Timer) model.Timer {
	if tm.Pomodoro != nil {
		cfg := *tm.Pomodoro
		tm.Pomodoro = &cfg
	}
	return tm
}

func sameState(a, b model.Timer) bool {
	if a.Status != b.Status || a.Remaining != b.Remaining || a.Duration != b.Duration {
		return false
	}
	if a.Pomodoro == nil || b.Pomodoro == nil {
		return a.Pomodoro == nil && b.Pomodoro == nil
	}
	return *a.Pomodoro == *b.Pomodoro
}
