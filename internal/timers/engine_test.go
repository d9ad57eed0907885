package timers

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sandeepkv93/companiond/internal/model"
)

func newTestEngine() *Engine {
	n := 0
	clock := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	return NewEngine(
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("tmr-%d", n)
		}),
	)
}

type recordingListener struct {
	completed []Completion
	deleted   []string
	engine    *Engine
}

func (r *recordingListener) TimerCompleted(c Completion) {
	r.completed = append(r.completed, c)
	if r.engine != nil {
		// Calling back into the engine must not deadlock.
		_ = r.engine.List()
	}
}

func (r *recordingListener) TimerDeleted(id string) {
	r.deleted = append(r.deleted, id)
}

func TestCreateCountdownAndStopwatch(t *testing.T) {
	e := newTestEngine()
	cd, err := e.Create("Tea", model.TimerTypeCountdown, 180, Options{})
	if err != nil {
		t.Fatalf("create countdown: %v", err)
	}
	if cd.Status != model.TimerStatusIdle || cd.Remaining != 180 || cd.Duration != 180 {
		t.Fatalf("unexpected countdown: %#v", cd)
	}

	sw, err := e.Create("Run", model.TimerTypeStopwatch, 99, Options{AutoRestart: true})
	if err != nil {
		t.Fatalf("create stopwatch: %v", err)
	}
	if sw.Duration != 0 || sw.Remaining != 0 || sw.AutoRestart {
		t.Fatalf("unexpected stopwatch: %#v", sw)
	}

	if _, err := e.Create("", model.TimerTypeCountdown, 10, Options{}); err != nil {
		t.Fatalf("empty name should be accepted: %v", err)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	e := newTestEngine()
	if _, err := e.Create("x", model.TimerType("egg"), 10, Options{}); !errors.Is(err, model.ErrInvalidTimerType) {
		t.Fatalf("expected ErrInvalidTimerType, got %v", err)
	}
	if _, err := e.Create("x", model.TimerTypeCountdown, -1, Options{}); !errors.Is(err, model.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	var ve *model.ValidationError
	_, err := e.CreatePomodoro("p", model.PomodoroConfig{})
	if !errors.As(err, &ve) || !errors.Is(err, model.ErrInvalidPomodoro) {
		t.Fatalf("expected pomodoro validation error, got %v", err)
	}
}

func TestStartPauseMissingAndNoOp(t *testing.T) {
	e := newTestEngine()
	if _, out := e.Start("nope"); out != Missing {
		t.Fatalf("expected Missing, got %v", out)
	}
	tm, _ := e.Create("Tea", model.TimerTypeCountdown, 5, Options{})
	if _, out := e.Start(tm.ID); out != Applied {
		t.Fatalf("expected Applied, got %v", out)
	}
	if _, out := e.Start(tm.ID); out != NoOp {
		t.Fatalf("expected NoOp on second start, got %v", out)
	}
	e.Tick(2 * time.Second)
	paused, out := e.Pause(tm.ID)
	if out != Applied || paused.Status != model.TimerStatusPaused || paused.Remaining != 3 {
		t.Fatalf("unexpected pause result: %v %#v", out, paused)
	}
	e.Tick(2 * time.Second)
	got, _ := e.Get(tm.ID)
	if got.Remaining != 3 {
		t.Fatalf("paused timer advanced: %#v", got)
	}
}

func TestCountdownMonotonicAndCompletes(t *testing.T) {
	e := newTestEngine()
	l := &recordingListener{engine: e}
	e.Subscribe(l)
	tm, _ := e.Create("Tea", model.TimerTypeCountdown, 3, Options{})
	e.Start(tm.ID)

	prev := 3
	for i := 0; i < 6; i++ {
		e.Tick(time.Second)
		got, _ := e.Get(tm.ID)
		if got.Remaining > prev || got.Remaining < 0 {
			t.Fatalf("remaining not monotonic: prev=%d got=%d", prev, got.Remaining)
		}
		prev = got.Remaining
	}
	got, _ := e.Get(tm.ID)
	if got.Status != model.TimerStatusCompleted || got.Remaining != 0 {
		t.Fatalf("expected completed timer, got %#v", got)
	}
	if len(l.completed) != 1 || l.completed[0].TimerID != tm.ID {
		t.Fatalf("expected exactly one completion, got %#v", l.completed)
	}
}

func TestCountdownAutoRestart(t *testing.T) {
	e := newTestEngine()
	tm, _ := e.Create("Hydrate", model.TimerTypeCountdown, 2, Options{AutoRestart: true})
	e.Start(tm.ID)

	var completions int
	for i := 0; i < 6; i++ {
		completions += len(e.Tick(time.Second).Completions)
	}
	got, _ := e.Get(tm.ID)
	if completions != 3 {
		t.Fatalf("expected 3 completions, got %d", completions)
	}
	if got.Status != model.TimerStatusRunning || got.Remaining != 2 {
		t.Fatalf("expected running restarted timer, got %#v", got)
	}
}

func TestStopwatchMonotonic(t *testing.T) {
	e := newTestEngine()
	sw, _ := e.Create("Run", model.TimerTypeStopwatch, 0, Options{})
	e.Start(sw.ID)
	prev := 0
	for i := 0; i < 5; i++ {
		e.Tick(time.Second)
		got, _ := e.Get(sw.ID)
		if got.Remaining < prev {
			t.Fatalf("stopwatch went backwards: %d -> %d", prev, got.Remaining)
		}
		prev = got.Remaining
	}
	if prev != 5 {
		t.Fatalf("expected 5 elapsed seconds, got %d", prev)
	}
}

func TestSubSecondTicksAccumulate(t *testing.T) {
	e := newTestEngine()
	sw, _ := e.Create("Run", model.TimerTypeStopwatch, 0, Options{})
	e.Start(sw.ID)
	for i := 0; i < 10; i++ {
		e.Tick(250 * time.Millisecond)
	}
	got, _ := e.Get(sw.ID)
	if got.Remaining != 2 {
		t.Fatalf("expected 2 seconds from 10x250ms, got %d", got.Remaining)
	}
}

func TestPomodoroPhaseSequence(t *testing.T) {
	e := newTestEngine()
	l := &recordingListener{}
	e.Subscribe(l)
	tm, err := e.CreatePomodoro("Focus", model.PomodoroConfig{
		WorkDuration:            25 * 60,
		BreakDuration:           5 * 60,
		LongBreakDuration:       15 * 60,
		SessionsBeforeLongBreak: 4,
		AutoRestart:             true,
	})
	if err != nil {
		t.Fatalf("create pomodoro: %v", err)
	}
	if tm.Remaining != 25*60 || tm.Pomodoro.IsBreak || tm.Pomodoro.CurrentSession != 0 {
		t.Fatalf("unexpected initial pomodoro: %#v %#v", tm, tm.Pomodoro)
	}
	e.Start(tm.ID)

	phases := []int{tm.Duration}
	for len(phases) < 8 {
		report := e.Tick(time.Minute)
		for _, pc := range report.PhaseChanges {
			phases = append(phases, pc.Duration)
		}
	}
	want := []int{25, 5, 25, 5, 25, 5, 25, 15}
	for i, w := range want {
		if phases[i] != w*60 {
			t.Fatalf("phase %d = %ds, want %ds (all=%v)", i, phases[i], w*60, phases)
		}
	}
	if len(l.completed) != 4 || l.completed[3].Session != 4 {
		t.Fatalf("expected a completion per work phase, got %#v", l.completed)
	}
	got, _ := e.Get(tm.ID)
	if got.Pomodoro.PhaseName() != "long break" || got.Status != model.TimerStatusRunning {
		t.Fatalf("unexpected final state: %#v %#v", got, got.Pomodoro)
	}
}

func TestPomodoroPausesBetweenPhasesWithoutAutoRestart(t *testing.T) {
	e := newTestEngine()
	tm, _ := e.CreatePomodoro("Focus", model.PomodoroConfig{
		WorkDuration: 2, BreakDuration: 1, LongBreakDuration: 3, SessionsBeforeLongBreak: 2,
	})
	e.Start(tm.ID)
	report := e.Tick(3 * time.Second)
	if len(report.PhaseChanges) != 1 || !report.PhaseChanges[0].Paused {
		t.Fatalf("expected a paused phase change, got %#v", report.PhaseChanges)
	}
	got, _ := e.Get(tm.ID)
	if got.Status != model.TimerStatusPaused || got.Remaining != 1 || !got.Pomodoro.IsBreak {
		t.Fatalf("unexpected state after work phase: %#v %#v", got, got.Pomodoro)
	}
}

func TestResetIdempotent(t *testing.T) {
	e := newTestEngine()
	tm, _ := e.CreatePomodoro("Focus", model.PomodoroConfig{
		WorkDuration: 2, BreakDuration: 1, LongBreakDuration: 3, SessionsBeforeLongBreak: 2, AutoRestart: true,
	})
	e.Start(tm.ID)
	e.Tick(2 * time.Second)

	once, out := e.Reset(tm.ID)
	if out != Applied {
		t.Fatalf("expected Applied, got %v", out)
	}
	twice, out := e.Reset(tm.ID)
	if out != NoOp {
		t.Fatalf("expected NoOp on second reset, got %v", out)
	}
	if !sameState(once, twice) || once.Status != model.TimerStatusIdle || once.Remaining != 2 || once.Pomodoro.CurrentSession != 0 {
		t.Fatalf("reset not idempotent: %#v vs %#v", once, twice)
	}
}

func TestStartCompletedTimerResets(t *testing.T) {
	e := newTestEngine()
	tm, _ := e.Create("Tea", model.TimerTypeCountdown, 1, Options{})
	e.Start(tm.ID)
	e.Tick(time.Second)
	restarted, out := e.Start(tm.ID)
	if out != Applied || restarted.Remaining != 1 || restarted.Status != model.TimerStatusRunning {
		t.Fatalf("unexpected restart: %v %#v", out, restarted)
	}
}

func TestDeleteNotifiesListeners(t *testing.T) {
	e := newTestEngine()
	l := &recordingListener{}
	e.Subscribe(l)
	tm, _ := e.Create("Tea", model.TimerTypeCountdown, 1, Options{})
	if !e.Delete(tm.ID) {
		t.Fatal("expected delete to report removal")
	}
	if e.Delete(tm.ID) {
		t.Fatal("expected second delete to report nothing removed")
	}
	if len(l.deleted) != 1 || l.deleted[0] != tm.ID {
		t.Fatalf("unexpected delete signals: %#v", l.deleted)
	}
	if len(e.List()) != 0 {
		t.Fatalf("expected empty list, got %#v", e.List())
	}
}

func TestResolveByIDOrName(t *testing.T) {
	e := newTestEngine()
	tm, _ := e.Create("Tea Time", model.TimerTypeCountdown, 60, Options{})
	if got, err := e.Resolve(tm.ID); err != nil || got.ID != tm.ID {
		t.Fatalf("resolve by id: %v %#v", err, got)
	}
	if got, err := e.Resolve("tea time"); err != nil || got.ID != tm.ID {
		t.Fatalf("resolve by name: %v %#v", err, got)
	}
	if _, err := e.Resolve("coffee"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReturnsCopies(t *testing.T) {
	e := newTestEngine()
	tm, _ := e.CreatePomodoro("Focus", model.PomodoroConfig{WorkDuration: 2, BreakDuration: 1, LongBreakDuration: 3, SessionsBeforeLongBreak: 2})
	list := e.List()
	list[0].Pomodoro.CurrentSession = 99
	got, _ := e.Get(tm.ID)
	if got.Pomodoro.CurrentSession != 0 {
		t.Fatal("List leaked internal pomodoro config")
	}
}

func TestLoadSkipsInvalid(t *testing.T) {
	e := newTestEngine()
	created := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	n, err := e.Load([]model.Timer{
		{ID: "a", Name: "A", Type: model.TimerTypeCountdown, Duration: 10, Remaining: 4, Status: model.TimerStatusPaused, CreatedAt: created},
		{ID: "b", Name: "B", Type: model.TimerTypeCountdown, Duration: 10, Remaining: 40, Status: model.TimerStatusIdle, CreatedAt: created},
		{ID: "a", Name: "dup", Type: model.TimerTypeStopwatch, Status: model.TimerStatusIdle, CreatedAt: created},
	})
	if n != 1 {
		t.Fatalf("expected 1 loaded timer, got %d", n)
	}
	if err == nil {
		t.Fatal("expected joined error for skipped entries")
	}
	got, _ := e.Get("a")
	if got.Remaining != 4 || got.Status != model.TimerStatusPaused {
		t.Fatalf("unexpected restored timer: %#v", got)
	}
}
