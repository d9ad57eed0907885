package actions

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, string) error { return nil }

type NoopSpeaker struct{}

func (NoopSpeaker) Speak(context.Context, string) error { return nil }

// ExecNotifier shells out to the desktop notification tool of the host.
type ExecNotifier struct{}

func (ExecNotifier) Notify(ctx context.Context, title, body string) error {
	name, args, err := notifyCommand(runtime.GOOS, title, body)
	if err != nil {
		return err
	}
	return exec.CommandContext(ctx, name, args...).Run()
}

// appleNotifyScript reads title and body from argv; user text is never part
// of the script source.
var appleNotifyScript = []string{
	"-e", "on run argv",
	"-e", "display notification (item 2 of argv) with title (item 1 of argv)",
	"-e", "end run",
}

func notifyCommand(goos, title, body string) (string, []string, error) {
	switch goos {
	case "linux":
		return "notify-send", []string{"--", title, body}, nil
	case "darwin":
		args := append(append([]string(nil), appleNotifyScript...), title, body)
		return "osascript", args, nil
	default:
		return "", nil, fmt.Errorf("%w: desktop notifications on %s", ErrUnavailable, goos)
	}
}

// ExecSpeaker uses say on macOS and espeak elsewhere.
type ExecSpeaker struct{}

func (ExecSpeaker) Speak(ctx context.Context, text string) error {
	bin := "espeak"
	if runtime.GOOS == "darwin" {
		bin = "say"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnavailable, bin)
	}
	return exec.CommandContext(ctx, path, text).Run()
}

// LogSMSComposer records the text instead of sending it. There is no SMS
// gateway on a desktop, so the outcome is always unknown.
type LogSMSComposer struct {
	Logger *slog.Logger
}

func (c LogSMSComposer) Compose(_ context.Context, phoneNumber, message string) (SMSStatus, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sms composed", "to", phoneNumber, "chars", len(message))
	return SMSUnknown, nil
}
