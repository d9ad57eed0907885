package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/companiond/internal/model"
)

type Type string

const (
	TypeTimer       Type = "timer"
	TypeStopwatch   Type = "stopwatch"
	TypePomodoro    Type = "pomodoro"
	TypeStart       Type = "start"
	TypePause       Type = "pause"
	TypeReset       Type = "reset"
	TypeCancel      Type = "cancel"
	TypeRemind      Type = "remind"
	TypeWhenDone    Type = "when-done"
	TypeAutomations Type = "automations"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
	ErrCodeNotFound        ErrorCode = "not_found"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(format string, args ...any) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

type TimerArgs struct {
	Name        string
	Duration    time.Duration
	AutoRestart bool
}

type StopwatchArgs struct {
	Name string
}

// PomodoroArgs leaves durations zero when not given; the service fills
// its defaults.
type PomodoroArgs struct {
	Name        string
	Work        time.Duration
	Break       time.Duration
	LongBreak   time.Duration
	Sessions    int
	AutoRestart bool
}

type TargetArgs struct {
	Target string
}

type ActionArgs struct {
	Type      model.ActionType
	Message   string
	Phone     string
	Signature bool
}

type RemindArgs struct {
	Trigger model.TriggerKind
	Time    string
	Days    []int
	Action  ActionArgs
}

type WhenDoneArgs struct {
	Target string
	Action ActionArgs
}

type Command struct {
	Type      Type
	Raw       string
	Timer     *TimerArgs
	Stopwatch *StopwatchArgs
	Pomodoro  *PomodoroArgs
	Target    *TargetArgs
	Remind    *RemindArgs
	WhenDone  *WhenDoneArgs
}

// Parse reads one line of the assistant command language. Options are
// written as key:value tokens anywhere after the command word, for example
// "pomodoro focus work:50m auto:yes".
func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	words, opts := splitOptions(parts[1:])

	switch Type(head) {
	case TypeTimer:
		return parseTimer(input, words, opts)
	case TypeStopwatch:
		return Command{Type: TypeStopwatch, Raw: input, Stopwatch: &StopwatchArgs{Name: strings.Join(words, " ")}}, nil
	case TypePomodoro:
		return parsePomodoro(input, words, opts)
	case TypeStart, TypePause, TypeReset, TypeCancel:
		return parseTarget(input, Type(head), words)
	case TypeRemind:
		return parseRemind(input, words, opts)
	case TypeWhenDone:
		return parseWhenDone(input, words, opts)
	case TypeAutomations:
		return Command{Type: TypeAutomations, Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseTimer(raw string, words []string, opts map[string]string) (Command, error) {
	if len(words) == 0 {
		return Command{}, invalid("timer requires a duration")
	}
	d, err := ParseDuration(words[0])
	if err != nil {
		return Command{}, invalid("timer duration %q: %v", words[0], err)
	}
	repeat, err := boolOption(opts, "repeat")
	if err != nil {
		return Command{}, err
	}
	return Command{Type: TypeTimer, Raw: raw, Timer: &TimerArgs{
		Name:        strings.Join(words[1:], " "),
		Duration:    d,
		AutoRestart: repeat,
	}}, nil
}

func parsePomodoro(raw string, words []string, opts map[string]string) (Command, error) {
	args := PomodoroArgs{Name: strings.Join(words, " ")}
	for key, dst := range map[string]*time.Duration{"work": &args.Work, "break": &args.Break, "long": &args.LongBreak} {
		v, ok := opts[key]
		if !ok {
			continue
		}
		d, err := ParseDuration(v)
		if err != nil {
			return Command{}, invalid("pomodoro %s %q: %v", key, v, err)
		}
		*dst = d
	}
	if v, ok := opts["sessions"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Command{}, invalid("pomodoro sessions must be a positive number, got %q", v)
		}
		args.Sessions = n
	}
	auto, err := boolOption(opts, "auto")
	if err != nil {
		return Command{}, err
	}
	args.AutoRestart = auto
	return Command{Type: TypePomodoro, Raw: raw, Pomodoro: &args}, nil
}

func parseTarget(raw string, typ Type, words []string) (Command, error) {
	target := strings.TrimSpace(strings.Join(words, " "))
	if target == "" {
		return Command{}, invalid("%s requires a timer name or id", typ)
	}
	return Command{Type: typ, Raw: raw, Target: &TargetArgs{Target: target}}, nil
}

// parseRemind handles "remind at HH:MM msg", "remind daily HH:MM msg" and
// "remind weekly mon,wed HH:MM msg".
func parseRemind(raw string, words []string, opts map[string]string) (Command, error) {
	if len(words) < 2 {
		return Command{}, invalid("remind requires a schedule and a time")
	}
	args := RemindArgs{}
	rest := words[1:]
	switch strings.ToLower(words[0]) {
	case "at":
		args.Trigger = model.TriggerTime
	case "daily":
		args.Trigger = model.TriggerDaily
	case "weekly":
		args.Trigger = model.TriggerWeekly
		days, err := ParseDays(rest[0])
		if err != nil {
			return Command{}, invalid("remind weekly days %q: %v", rest[0], err)
		}
		args.Days = days
		rest = rest[1:]
	default:
		return Command{}, invalid("remind schedule must be at, daily or weekly, got %q", words[0])
	}
	if len(rest) == 0 {
		return Command{}, invalid("remind requires a time")
	}
	clock, err := model.NormalizeClock(rest[0])
	if err != nil {
		return Command{}, invalid("remind time %q: %v", rest[0], err)
	}
	args.Time = clock
	action, err := parseAction(rest[1:], opts, model.ActionReminder)
	if err != nil {
		return Command{}, err
	}
	args.Action = action
	return Command{Type: TypeRemind, Raw: raw, Remind: &args}, nil
}

// parseWhenDone handles "when-done <timer> [message]" and
// "when-done [message] timer:<timer>".
func parseWhenDone(raw string, words []string, opts map[string]string) (Command, error) {
	target := opts["timer"]
	if target == "" {
		if len(words) == 0 {
			return Command{}, invalid("when-done requires a timer name or id")
		}
		target, words = words[0], words[1:]
	}
	action, err := parseAction(words, opts, model.ActionNotify)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: TypeWhenDone, Raw: raw, WhenDone: &WhenDoneArgs{Target: target, Action: action}}, nil
}

func parseAction(words []string, opts map[string]string, fallback model.ActionType) (ActionArgs, error) {
	action := ActionArgs{Type: fallback, Message: strings.Join(words, " "), Phone: opts["phone"]}
	if v, ok := opts["via"]; ok {
		action.Type = model.ActionType(strings.ToLower(v))
	}
	if err := (model.Action{Type: action.Type, PhoneNumber: action.Phone}).Validate(); err != nil {
		return ActionArgs{}, invalid("%v", err)
	}
	sig, err := boolOption(opts, "signed")
	if err != nil {
		return ActionArgs{}, err
	}
	action.Signature = sig
	return action, nil
}

func splitOptions(args []string) ([]string, map[string]string) {
	words := make([]string, 0, len(args))
	opts := map[string]string{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, ":")
		if ok && isOptionKey(key) && value != "" {
			opts[strings.ToLower(key)] = value
			continue
		}
		words = append(words, arg)
	}
	return words, opts
}

func isOptionKey(key string) bool {
	switch strings.ToLower(key) {
	case "repeat", "work", "break", "long", "sessions", "auto", "via", "phone", "signed", "timer":
		return true
	default:
		return false
	}
}

func boolOption(opts map[string]string, key string) (bool, error) {
	v, ok := opts[key]
	if !ok {
		return false, nil
	}
	switch strings.ToLower(v) {
	case "yes", "y", "true", "on":
		return true, nil
	case "no", "n", "false", "off":
		return false, nil
	default:
		return false, invalid("%s must be yes or no, got %q", key, v)
	}
}

// ParseDuration accepts Go durations ("1h30m", "90s") and bare numbers,
// which are read as minutes.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, errors.New("must be at least one second")
	}
	return d, nil
}

var dayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ParseDays reads comma separated day names or numbers (0 = Sunday), and
// the shorthands "weekdays" and "weekends".
func ParseDays(v string) ([]int, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "weekdays":
		return []int{1, 2, 3, 4, 5}, nil
	case "weekends":
		return []int{0, 6}, nil
	}
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		day, ok := dayNames[part]
		if !ok && len(part) > 3 {
			day, ok = dayNames[part[:3]]
		}
		if !ok {
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 || n > 6 {
				return nil, fmt.Errorf("unknown day %q", part)
			}
			day = n
		}
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no days given")
	}
	return out, nil
}
