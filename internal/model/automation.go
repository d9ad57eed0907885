package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTrigger    = errors.New("model: invalid automation trigger")
	ErrInvalidTime       = errors.New("model: invalid trigger time")
	ErrInvalidDayOfWeek  = errors.New("model: invalid trigger day of week")
	ErrMissingTimerRef   = errors.New("model: timer_complete trigger requires a timer id")
	ErrUnknownTimerRef   = errors.New("model: trigger references unknown timer")
	ErrInvalidActionType = errors.New("model: invalid action type")
	ErrMissingPhone      = errors.New("model: sms action requires a phone number")
)

type TriggerKind string

const (
	TriggerTime          TriggerKind = "time"
	TriggerDaily         TriggerKind = "daily"
	TriggerWeekly        TriggerKind = "weekly"
	TriggerTimerComplete TriggerKind = "timer_complete"
)

func (k TriggerKind) IsValid() bool {
	switch k {
	case TriggerTime, TriggerDaily, TriggerWeekly, TriggerTimerComplete:
		return true
	default:
		return false
	}
}

// IsClockBased reports whether the trigger is matched against wall-clock time.
func (k TriggerKind) IsClockBased() bool {
	return k == TriggerTime || k == TriggerDaily || k == TriggerWeekly
}

type TriggerConfig struct {
	Time      string `json:"time,omitempty" yaml:"time,omitempty"`
	DayOfWeek []int  `json:"dayOfWeek,omitempty" yaml:"dayOfWeek,omitempty"`
	TimerID   string `json:"timerId,omitempty" yaml:"timerId,omitempty"`
}

type ActionType string

const (
	ActionSpeak       ActionType = "speak"
	ActionNotify      ActionType = "notify"
	ActionReminder    ActionType = "reminder"
	ActionAffirmation ActionType = "affirmation"
	ActionSMS         ActionType = "sms"
)

func (a ActionType) IsValid() bool {
	switch a {
	case ActionSpeak, ActionNotify, ActionReminder, ActionAffirmation, ActionSMS:
		return true
	default:
		return false
	}
}

type Action struct {
	Type             ActionType `json:"type" yaml:"type"`
	Message          string     `json:"message,omitempty" yaml:"message,omitempty"`
	PhoneNumber      string     `json:"phoneNumber,omitempty" yaml:"phoneNumber,omitempty"`
	IncludeSignature bool       `json:"includeSignature,omitempty" yaml:"includeSignature,omitempty"`
}

func (a Action) Validate() error {
	if !a.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidActionType, a.Type)
	}
	if a.Type == ActionSMS && strings.TrimSpace(a.PhoneNumber) == "" {
		return ErrMissingPhone
	}
	return nil
}

type Automation struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Trigger       TriggerKind   `json:"trigger"`
	TriggerConfig TriggerConfig `json:"triggerConfig"`
	Action        Action        `json:"action"`
	LastRun       *time.Time    `json:"lastRun"`
	PausedUntil   *time.Time    `json:"pausedUntil,omitempty"`
	Orphaned      bool          `json:"orphaned,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// IsPaused reports whether a scheduled resume lies in the future.
func (a Automation) IsPaused(now time.Time) bool {
	return a.PausedUntil != nil && now.Before(*a.PausedUntil)
}

// ValidateTrigger checks that the config fields required by kind are present
// and well formed. timerExists may be nil when no timer lookup is available.
func ValidateTrigger(kind TriggerKind, cfg TriggerConfig, timerExists func(string) bool) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, kind)
	}
	if kind.IsClockBased() {
		if _, _, err := ParseClock(cfg.Time); err != nil {
			return err
		}
	}
	if kind == TriggerWeekly {
		if len(cfg.DayOfWeek) == 0 {
			return fmt.Errorf("%w: weekly trigger needs at least one day", ErrInvalidDayOfWeek)
		}
		seen := make(map[int]bool, len(cfg.DayOfWeek))
		for _, d := range cfg.DayOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, d)
			}
			if seen[d] {
				return fmt.Errorf("%w: duplicate day %d", ErrInvalidDayOfWeek, d)
			}
			seen[d] = true
		}
	}
	if kind == TriggerTimerComplete {
		id := strings.TrimSpace(cfg.TimerID)
		if id == "" {
			return ErrMissingTimerRef
		}
		if timerExists != nil && !timerExists(id) {
			return fmt.Errorf("%w: %q", ErrUnknownTimerRef, id)
		}
	}
	return nil
}

func (a Automation) Validate(timerExists func(string) bool) error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("model: automation id is required")
	}
	if err := ValidateTrigger(a.Trigger, a.TriggerConfig, timerExists); err != nil {
		return err
	}
	return a.Action.Validate()
}

// ParseClock parses a 24h "HH:MM" wall-clock value.
func ParseClock(v string) (hour, minute int, err error) {
	raw := strings.TrimSpace(v)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 ||
		!allDigits(parts[0]) || !allDigits(parts[1]) {
		return 0, 0, fmt.Errorf("%w: %q (want HH:MM)", ErrInvalidTime, v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q (hour)", ErrInvalidTime, v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q (minute)", ErrInvalidTime, v)
	}
	return hour, minute, nil
}

func allDigits(v string) bool {
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeClock returns the zero-padded "HH:MM" form.
func NormalizeClock(v string) (string, error) {
	h, m, err := ParseClock(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
