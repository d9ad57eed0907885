package commands

import (
	"context"
	"fmt"
)

type Result struct {
	Message string
}

type Handlers struct {
	Timer       func(context.Context, TimerArgs) (Result, error)
	Stopwatch   func(context.Context, StopwatchArgs) (Result, error)
	Pomodoro    func(context.Context, PomodoroArgs) (Result, error)
	Start       func(context.Context, TargetArgs) (Result, error)
	Pause       func(context.Context, TargetArgs) (Result, error)
	Reset       func(context.Context, TargetArgs) (Result, error)
	Cancel      func(context.Context, TargetArgs) (Result, error)
	Remind      func(context.Context, RemindArgs) (Result, error)
	WhenDone    func(context.Context, WhenDoneArgs) (Result, error)
	Automations func(context.Context) (Result, error)
}

func Execute(ctx context.Context, cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeTimer:
		if handlers.Timer == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Timer(ctx, *cmd.Timer)
	case TypeStopwatch:
		if handlers.Stopwatch == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Stopwatch(ctx, *cmd.Stopwatch)
	case TypePomodoro:
		if handlers.Pomodoro == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Pomodoro(ctx, *cmd.Pomodoro)
	case TypeStart, TypePause, TypeReset, TypeCancel:
		h := targetHandler(cmd.Type, handlers)
		if h == nil {
			return Result{}, missing(cmd.Type)
		}
		return h(ctx, *cmd.Target)
	case TypeRemind:
		if handlers.Remind == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Remind(ctx, *cmd.Remind)
	case TypeWhenDone:
		if handlers.WhenDone == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.WhenDone(ctx, *cmd.WhenDone)
	case TypeAutomations:
		if handlers.Automations == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Automations(ctx)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

// Run parses and executes one line.
func Run(ctx context.Context, input string, handlers Handlers) (Result, error) {
	cmd, err := Parse(input)
	if err != nil {
		return Result{}, err
	}
	return Execute(ctx, cmd, handlers)
}

func targetHandler(t Type, h Handlers) func(context.Context, TargetArgs) (Result, error) {
	switch t {
	case TypeStart:
		return h.Start
	case TypePause:
		return h.Pause
	case TypeReset:
		return h.Reset
	default:
		return h.Cancel
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
