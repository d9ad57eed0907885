package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sandeepkv93/companiond/internal/model"
)

var ErrUnavailable = errors.New("actions: side effect unavailable")

type SMSStatus string

const (
	SMSSent      SMSStatus = "sent"
	SMSCancelled SMSStatus = "cancelled"
	SMSUnknown   SMSStatus = "unknown"
)

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// SMSComposer hands a message to whatever composes texts on this host and
// reports what the user did with it.
type SMSComposer interface {
	Compose(ctx context.Context, phoneNumber, message string) (SMSStatus, error)
}

// Result is the outcome of one dispatch. Failures are carried in Err and
// never returned separately; the caller records the firing either way.
type Result struct {
	Type      model.ActionType
	Delivered bool
	Text      string
	SMSStatus SMSStatus
	Detail    string
	Err       error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

type Dispatcher struct {
	Speaker   Speaker
	Notifier  Notifier
	SMS       SMSComposer
	Signature string

	logger       *slog.Logger
	mu           sync.Mutex
	affirmations []string
	nextAffirm   int
}

func NewDispatcher(speaker Speaker, notifier Notifier, sms SMSComposer, signature string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Speaker:      speaker,
		Notifier:     notifier,
		SMS:          sms,
		Signature:    strings.TrimSpace(signature),
		logger:       logger,
		affirmations: defaultAffirmations,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, a model.Automation) Result {
	act := a.Action
	res := Result{Type: act.Type, Text: d.compose(a)}

	switch act.Type {
	case model.ActionSpeak:
		res.Err = d.speak(ctx, res.Text)
	case model.ActionNotify:
		res.Err = d.notify(ctx, titleFor(a, "Companion"), res.Text)
	case model.ActionReminder:
		res.Err = d.notify(ctx, titleFor(a, "Reminder"), res.Text)
	case model.ActionAffirmation:
		if d.Speaker != nil {
			res.Err = d.speak(ctx, res.Text)
		} else {
			res.Err = d.notify(ctx, "Affirmation", res.Text)
		}
	case model.ActionSMS:
		res.SMSStatus, res.Err = d.sendSMS(ctx, act.PhoneNumber, res.Text)
	default:
		res.Err = fmt.Errorf("%w: %q", model.ErrInvalidActionType, act.Type)
	}

	res.Delivered = res.Err == nil && (act.Type != model.ActionSMS || res.SMSStatus == SMSSent)
	if res.Err != nil {
		res.Detail = res.Err.Error()
		d.logger.Warn("action dispatch failed",
			"automation_id", a.ID,
			"action", act.Type,
			"error", res.Err,
		)
	} else if act.Type == model.ActionSMS {
		res.Detail = "sms " + string(res.SMSStatus)
	}
	return res
}

func (d *Dispatcher) compose(a model.Automation) string {
	text := strings.TrimSpace(a.Action.Message)
	if text == "" {
		switch a.Action.Type {
		case model.ActionAffirmation:
			text = d.nextAffirmation()
		default:
			text = a.Name
		}
	}
	if a.Action.IncludeSignature && d.Signature != "" {
		text += "\n\n" + d.Signature
	}
	return text
}

func (d *Dispatcher) nextAffirmation() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.affirmations) == 0 {
		return "You are doing great."
	}
	text := d.affirmations[d.nextAffirm%len(d.affirmations)]
	d.nextAffirm++
	return text
}

func (d *Dispatcher) speak(ctx context.Context, text string) error {
	if d.Speaker == nil {
		return fmt.Errorf("%w: no speech synthesizer", ErrUnavailable)
	}
	return d.Speaker.Speak(ctx, text)
}

func (d *Dispatcher) notify(ctx context.Context, title, body string) error {
	if d.Notifier == nil {
		return fmt.Errorf("%w: no notifier", ErrUnavailable)
	}
	return d.Notifier.Notify(ctx, title, body)
}

func (d *Dispatcher) sendSMS(ctx context.Context, phone, text string) (SMSStatus, error) {
	if d.SMS == nil {
		return SMSUnknown, fmt.Errorf("%w: sms is not supported on this host", ErrUnavailable)
	}
	status, err := d.SMS.Compose(ctx, phone, text)
	if status == "" {
		status = SMSUnknown
	}
	return status, err
}

func titleFor(a model.Automation, fallback string) string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return fallback
}

var defaultAffirmations = []string{
	"You are capable of amazing things.",
	"Small steps every day add up.",
	"You have handled hard days before and you will again.",
	"Progress, not perfection.",
	"Take a breath. You are exactly where you need to be.",
}
