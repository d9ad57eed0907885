package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/companiond/internal/automation"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/timers"
)

// Backend is the part of the companion service the commands drive.
type Backend interface {
	CreateTimer(ctx context.Context, name string, typ model.TimerType, durationSeconds int, opts timers.Options) (model.Timer, error)
	CreatePomodoro(ctx context.Context, name string, cfg model.PomodoroConfig) (model.Timer, error)
	StartTimer(ctx context.Context, ref string) (model.Timer, timers.Outcome, error)
	PauseTimer(ctx context.Context, ref string) (model.Timer, timers.Outcome, error)
	ResetTimer(ctx context.Context, ref string) (model.Timer, timers.Outcome, error)
	DeleteTimer(ctx context.Context, ref string) (model.Timer, error)
	Timer(ref string) (model.Timer, error)
	CreateAutomation(ctx context.Context, name string, trigger model.TriggerKind, cfg model.TriggerConfig, action model.Action) (model.Automation, error)
	Automations() []model.Automation
}

// ForService binds every command to the companion service. Timer names
// resolve case-insensitively; new timers start immediately.
func ForService(svc Backend) Handlers {
	return Handlers{
		Timer: func(ctx context.Context, a TimerArgs) (Result, error) {
			tm, err := svc.CreateTimer(ctx, a.Name, model.TimerTypeCountdown, seconds(a.Duration), timers.Options{AutoRestart: a.AutoRestart})
			if err != nil {
				return Result{}, translate(err)
			}
			if tm, err = startCreated(ctx, svc, tm); err != nil {
				return Result{}, err
			}
			return Result{Message: fmt.Sprintf("Started %s timer %s", FormatSeconds(tm.Duration), label(tm))}, nil
		},
		Stopwatch: func(ctx context.Context, a StopwatchArgs) (Result, error) {
			tm, err := svc.CreateTimer(ctx, a.Name, model.TimerTypeStopwatch, 0, timers.Options{})
			if err != nil {
				return Result{}, translate(err)
			}
			if tm, err = startCreated(ctx, svc, tm); err != nil {
				return Result{}, err
			}
			return Result{Message: fmt.Sprintf("Started stopwatch %s", label(tm))}, nil
		},
		Pomodoro: func(ctx context.Context, a PomodoroArgs) (Result, error) {
			tm, err := svc.CreatePomodoro(ctx, a.Name, model.PomodoroConfig{
				WorkDuration:            seconds(a.Work),
				BreakDuration:           seconds(a.Break),
				LongBreakDuration:       seconds(a.LongBreak),
				SessionsBeforeLongBreak: a.Sessions,
				AutoRestart:             a.AutoRestart,
			})
			if err != nil {
				return Result{}, translate(err)
			}
			if tm, err = startCreated(ctx, svc, tm); err != nil {
				return Result{}, err
			}
			cfg := tm.Pomodoro
			return Result{Message: fmt.Sprintf("Started pomodoro %s: %s work, %s break, %s long break every %d sessions",
				label(tm), FormatSeconds(cfg.WorkDuration), FormatSeconds(cfg.BreakDuration),
				FormatSeconds(cfg.LongBreakDuration), cfg.SessionsBeforeLongBreak)}, nil
		},
		Start: lifecycle(svc.StartTimer, "Started", "is already running"),
		Pause: lifecycle(svc.PauseTimer, "Paused", "is not running"),
		Reset: lifecycle(svc.ResetTimer, "Reset", "is already reset"),
		Cancel: func(ctx context.Context, a TargetArgs) (Result, error) {
			tm, err := svc.DeleteTimer(ctx, a.Target)
			if err != nil {
				return Result{}, translate(err)
			}
			return Result{Message: fmt.Sprintf("Cancelled timer %s", label(tm))}, nil
		},
		Remind: func(ctx context.Context, a RemindArgs) (Result, error) {
			name := describeSchedule(a)
			au, err := svc.CreateAutomation(ctx, name, a.Trigger,
				model.TriggerConfig{Time: a.Time, DayOfWeek: a.Days}, a.Action.toAction())
			if err != nil {
				return Result{}, translate(err)
			}
			return Result{Message: fmt.Sprintf("Created automation %q (%s)", au.Name, au.ID)}, nil
		},
		WhenDone: func(ctx context.Context, a WhenDoneArgs) (Result, error) {
			tm, err := svc.Timer(a.Target)
			if err != nil {
				return Result{}, translate(err)
			}
			au, err := svc.CreateAutomation(ctx, "when "+label(tm)+" finishes", model.TriggerTimerComplete,
				model.TriggerConfig{TimerID: tm.ID}, a.Action.toAction())
			if err != nil {
				return Result{}, translate(err)
			}
			return Result{Message: fmt.Sprintf("Created automation %q (%s)", au.Name, au.ID)}, nil
		},
		Automations: func(ctx context.Context) (Result, error) {
			list := svc.Automations()
			if len(list) == 0 {
				return Result{Message: "No automations"}, nil
			}
			lines := make([]string, 0, len(list))
			for _, a := range list {
				lines = append(lines, fmt.Sprintf("%s  %-24s %-14s %s", a.ID, a.Name, a.Trigger, AutomationState(a, time.Now())))
			}
			return Result{Message: strings.Join(lines, "\n")}, nil
		},
	}
}

// startCreated starts a timer a command just created. The timer exists
// either way; a failed start is reported instead of announced as started.
func startCreated(ctx context.Context, svc Backend, tm model.Timer) (model.Timer, error) {
	started, out, err := svc.StartTimer(ctx, tm.ID)
	if err != nil {
		return tm, fmt.Errorf("created timer %s but could not start it: %w", label(tm), translate(err))
	}
	if out != timers.Applied {
		return tm, fmt.Errorf("created timer %s but it did not start (status %s)", label(tm), started.Status)
	}
	return started, nil
}

type lifecycleFunc func(context.Context, string) (model.Timer, timers.Outcome, error)

func lifecycle(op lifecycleFunc, verb, noop string) func(context.Context, TargetArgs) (Result, error) {
	return func(ctx context.Context, a TargetArgs) (Result, error) {
		tm, out, err := op(ctx, a.Target)
		if err != nil {
			return Result{}, translate(err)
		}
		if out == timers.NoOp {
			return Result{Message: fmt.Sprintf("Timer %s %s", label(tm), noop)}, nil
		}
		return Result{Message: fmt.Sprintf("%s timer %s", verb, label(tm))}, nil
	}
}

func (a ActionArgs) toAction() model.Action {
	return model.Action{Type: a.Type, Message: a.Message, PhoneNumber: a.Phone, IncludeSignature: a.Signature}
}

// translate maps service errors onto command error codes so callers can
// relay them without inspecting package sentinels.
func translate(err error) error {
	var ve *model.ValidationError
	switch {
	case errors.Is(err, model.ErrNotFound):
		return &CommandError{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.As(err, &ve), errors.Is(err, automation.ErrOrphaned), errors.Is(err, automation.ErrInvalidPause):
		return &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
	default:
		return err
	}
}

func describeSchedule(a RemindArgs) string {
	subject := a.Action.Message
	if subject == "" {
		subject = string(a.Action.Type)
	}
	switch a.Trigger {
	case model.TriggerDaily:
		return fmt.Sprintf("%s daily at %s", subject, a.Time)
	case model.TriggerWeekly:
		days := make([]string, 0, len(a.Days))
		for _, d := range a.Days {
			days = append(days, time.Weekday(d).String()[:3])
		}
		return fmt.Sprintf("%s on %s at %s", subject, strings.Join(days, ","), a.Time)
	default:
		return fmt.Sprintf("%s at %s", subject, a.Time)
	}
}

// AutomationState summarises whether an automation can currently fire.
func AutomationState(a model.Automation, now time.Time) string {
	switch {
	case a.Orphaned:
		return "orphaned"
	case !a.Enabled:
		return "disabled"
	case a.IsPaused(now):
		return "paused until " + a.PausedUntil.Local().Format("Jan 2 15:04")
	default:
		return "enabled"
	}
}

func label(tm model.Timer) string {
	if tm.Name == "" {
		return tm.ID
	}
	return fmt.Sprintf("%q", tm.Name)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

// FormatSeconds renders 90 as "1m30s" and 3600 as "1h".
func FormatSeconds(s int) string {
	if s <= 0 {
		return "0s"
	}
	h, m, sec := s/3600, s%3600/60, s%60
	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if sec > 0 {
		fmt.Fprintf(&b, "%ds", sec)
	}
	return b.String()
}
