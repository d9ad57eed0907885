package model

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTriggerClockKinds(t *testing.T) {
	cases := []struct {
		kind TriggerKind
		cfg  TriggerConfig
		want error
	}{
		{TriggerDaily, TriggerConfig{Time: "09:00"}, nil},
		{TriggerTime, TriggerConfig{Time: "7:05"}, nil},
		{TriggerDaily, TriggerConfig{}, ErrInvalidTime},
		{TriggerDaily, TriggerConfig{Time: "24:00"}, ErrInvalidTime},
		{TriggerDaily, TriggerConfig{Time: "09:60"}, ErrInvalidTime},
		{TriggerWeekly, TriggerConfig{Time: "18:00"}, ErrInvalidDayOfWeek},
		{TriggerWeekly, TriggerConfig{Time: "18:00", DayOfWeek: []int{1, 3, 5}}, nil},
		{TriggerWeekly, TriggerConfig{Time: "18:00", DayOfWeek: []int{7}}, ErrInvalidDayOfWeek},
		{TriggerWeekly, TriggerConfig{Time: "18:00", DayOfWeek: []int{2, 2}}, ErrInvalidDayOfWeek},
		{TriggerKind("hourly"), TriggerConfig{Time: "18:00"}, ErrInvalidTrigger},
	}
	for _, tc := range cases {
		err := ValidateTrigger(tc.kind, tc.cfg, nil)
		if tc.want == nil && err != nil {
			t.Fatalf("%s %+v: unexpected error %v", tc.kind, tc.cfg, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s %+v: expected %v, got %v", tc.kind, tc.cfg, tc.want, err)
		}
	}
}

func TestValidateTriggerTimerReference(t *testing.T) {
	exists := func(id string) bool { return id == "tmr-1" }
	if err := ValidateTrigger(TriggerTimerComplete, TriggerConfig{}, exists); !errors.Is(err, ErrMissingTimerRef) {
		t.Fatalf("expected ErrMissingTimerRef, got %v", err)
	}
	if err := ValidateTrigger(TriggerTimerComplete, TriggerConfig{TimerID: "tmr-2"}, exists); !errors.Is(err, ErrUnknownTimerRef) {
		t.Fatalf("expected ErrUnknownTimerRef, got %v", err)
	}
	if err := ValidateTrigger(TriggerTimerComplete, TriggerConfig{TimerID: "tmr-1"}, exists); err != nil {
		t.Fatalf("expected valid reference, got %v", err)
	}
}

func TestActionValidate(t *testing.T) {
	if err := (Action{Type: ActionSMS}).Validate(); !errors.Is(err, ErrMissingPhone) {
		t.Fatalf("expected ErrMissingPhone, got %v", err)
	}
	if err := (Action{Type: ActionType("email")}).Validate(); !errors.Is(err, ErrInvalidActionType) {
		t.Fatalf("expected ErrInvalidActionType, got %v", err)
	}
	if err := (Action{Type: ActionSpeak, Message: "stretch"}).Validate(); err != nil {
		t.Fatalf("expected valid action, got %v", err)
	}
}

func TestNormalizeClock(t *testing.T) {
	got, err := NormalizeClock("7:05")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "07:05" {
		t.Fatalf("normalize = %q, want 07:05", got)
	}
}

func TestParseClockRejectsSignsAndJunk(t *testing.T) {
	for _, in := range []string{"+9:00", "-0:30", "09:+5", "09:-5", "24:00", "12:60", "1a:00", "12:5", "12", " : ", "١٢:٠٠"} {
		if h, m, err := ParseClock(in); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("ParseClock(%q) = %d:%d, %v; want ErrInvalidTime", in, h, m, err)
		}
	}
	h, m, err := ParseClock(" 23:59 ")
	if err != nil || h != 23 || m != 59 {
		t.Fatalf("ParseClock(23:59) = %d:%d, %v", h, m, err)
	}
}

func TestAutomationIsPaused(t *testing.T) {
	now := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	a := Automation{PausedUntil: &until}
	if !a.IsPaused(now) {
		t.Fatal("expected paused before resume time")
	}
	if a.IsPaused(until) {
		t.Fatal("expected resumed at resume time")
	}
}
