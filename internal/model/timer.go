package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("model: not found")
	ErrInvalidTimerType  = errors.New("model: invalid timer type")
	ErrInvalidStatus     = errors.New("model: invalid timer status")
	ErrInvalidDuration   = errors.New("model: invalid timer duration")
	ErrInvalidPomodoro   = errors.New("model: invalid pomodoro config")
	ErrRemainingOutRange = errors.New("model: timer remaining out of range")
)

type TimerType string

const (
	TimerTypeCountdown TimerType = "countdown"
	TimerTypeStopwatch TimerType = "stopwatch"
	TimerTypePomodoro  TimerType = "pomodoro"
)

func (t TimerType) IsValid() bool {
	switch t {
	case TimerTypeCountdown, TimerTypeStopwatch, TimerTypePomodoro:
		return true
	default:
		return false
	}
}

type TimerStatus string

const (
	TimerStatusIdle      TimerStatus = "idle"
	TimerStatusRunning   TimerStatus = "running"
	TimerStatusPaused    TimerStatus = "paused"
	TimerStatusCompleted TimerStatus = "completed"
)

func (s TimerStatus) IsValid() bool {
	switch s {
	case TimerStatusIdle, TimerStatusRunning, TimerStatusPaused, TimerStatusCompleted:
		return true
	default:
		return false
	}
}

// PomodoroConfig carries both the configured phase lengths and the live
// cycle position. All durations are seconds.
type PomodoroConfig struct {
	WorkDuration            int  `json:"workDuration"`
	BreakDuration           int  `json:"breakDuration"`
	LongBreakDuration       int  `json:"longBreakDuration"`
	SessionsBeforeLongBreak int  `json:"sessionsBeforeLongBreak"`
	CurrentSession          int  `json:"currentSession"`
	IsBreak                 bool `json:"isBreak"`
	AutoRestart             bool `json:"autoRestart"`
}

func (c PomodoroConfig) Validate() error {
	if c.WorkDuration <= 0 {
		return fmt.Errorf("%w: work duration must be positive, got %d", ErrInvalidPomodoro, c.WorkDuration)
	}
	if c.BreakDuration <= 0 {
		return fmt.Errorf("%w: break duration must be positive, got %d", ErrInvalidPomodoro, c.BreakDuration)
	}
	if c.LongBreakDuration <= 0 {
		return fmt.Errorf("%w: long break duration must be positive, got %d", ErrInvalidPomodoro, c.LongBreakDuration)
	}
	if c.SessionsBeforeLongBreak <= 0 {
		return fmt.Errorf("%w: sessions before long break must be positive, got %d", ErrInvalidPomodoro, c.SessionsBeforeLongBreak)
	}
	if c.CurrentSession < 0 {
		return fmt.Errorf("%w: current session must not be negative", ErrInvalidPomodoro)
	}
	return nil
}

// NextBreakDuration is the break length that follows the work session that
// just brought CurrentSession to its value.
func (c PomodoroConfig) NextBreakDuration() int {
	if c.SessionsBeforeLongBreak > 0 && c.CurrentSession > 0 && c.CurrentSession%c.SessionsBeforeLongBreak == 0 {
		return c.LongBreakDuration
	}
	return c.BreakDuration
}

func (c PomodoroConfig) PhaseName() string {
	if !c.IsBreak {
		return "work"
	}
	if c.SessionsBeforeLongBreak > 0 && c.CurrentSession > 0 && c.CurrentSession%c.SessionsBeforeLongBreak == 0 {
		return "long break"
	}
	return "break"
}

type Timer struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        TimerType       `json:"type"`
	Duration    int             `json:"duration"`
	Remaining   int             `json:"remaining"`
	Status      TimerStatus     `json:"status"`
	AutoRestart bool            `json:"autoRestart,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Pomodoro    *PomodoroConfig `json:"pomodoroConfig,omitempty"`
}

func (t Timer) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: timer id is required")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTimerType, t.Type)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.CreatedAt.IsZero() {
		return errors.New("model: timer created_at is required")
	}
	if t.Duration < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, t.Duration)
	}
	switch t.Type {
	case TimerTypeStopwatch:
		if t.Duration != 0 {
			return fmt.Errorf("%w: stopwatch duration must be 0, got %d", ErrInvalidDuration, t.Duration)
		}
		if t.Remaining < 0 {
			return fmt.Errorf("%w: %d", ErrRemainingOutRange, t.Remaining)
		}
	case TimerTypeCountdown, TimerTypePomodoro:
		if t.Remaining < 0 || t.Remaining > t.Duration {
			return fmt.Errorf("%w: %d not in [0,%d]", ErrRemainingOutRange, t.Remaining, t.Duration)
		}
	}
	if t.Type == TimerTypePomodoro {
		if t.Pomodoro == nil {
			return fmt.Errorf("%w: pomodoro timer requires config", ErrInvalidPomodoro)
		}
		if err := t.Pomodoro.Validate(); err != nil {
			return err
		}
	} else if t.Pomodoro != nil {
		return fmt.Errorf("%w: only pomodoro timers carry a pomodoro config", ErrInvalidPomodoro)
	}
	return nil
}

// Progress is the fraction of the current phase already consumed, in [0,1].
// Stopwatches report 0.
func (t Timer) Progress() float64 {
	if t.Type == TimerTypeStopwatch || t.Duration <= 0 {
		return 0
	}
	done := float64(t.Duration-t.Remaining) / float64(t.Duration)
	if done < 0 {
		return 0
	}
	if done > 1 {
		return 1
	}
	return done
}
