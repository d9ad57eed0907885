package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/companiond/internal/model"
)

type RuntimeConfig struct {
	DBPath               string
	EncryptionKey        string
	TickInterval         time.Duration
	EventBuffer          int
	LogLevel             string
	LogFormat            string
	DesktopNotifications bool
	Speech               bool
	Signature            string
	HTTPAddr             string
	PomodoroWorkMins     int
	PomodoroBreakMins    int
	PomodoroLongMins     int
	PomodoroSessions     int
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DBPath:               "companion.db",
		TickInterval:         time.Second,
		EventBuffer:          64,
		LogLevel:             "info",
		LogFormat:            "text",
		DesktopNotifications: false,
		Speech:               false,
		HTTPAddr:             "127.0.0.1:8787",
		PomodoroWorkMins:     25,
		PomodoroBreakMins:    5,
		PomodoroLongMins:     15,
		PomodoroSessions:     4,
	}
}

func RuntimeConfigFromEnv(base RuntimeConfig) RuntimeConfig {
	cfg := base
	if v, ok := getEnvString("COMPANION_DB"); ok {
		cfg.DBPath = v
	}
	if v, ok := getEnvString("COMPANION_KEY"); ok {
		cfg.EncryptionKey = v
	}
	if v, ok := getEnvInt("COMPANION_TICK_MS"); ok && v > 0 {
		cfg.TickInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := getEnvInt("COMPANION_EVENT_BUFFER"); ok && v > 0 {
		cfg.EventBuffer = v
	}
	if v, ok := getEnvString("COMPANION_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getEnvString("COMPANION_LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := getEnvBool("COMPANION_DESKTOP_NOTIFICATIONS"); ok {
		cfg.DesktopNotifications = v
	}
	if v, ok := getEnvBool("COMPANION_SPEECH"); ok {
		cfg.Speech = v
	}
	if v, ok := getEnvString("COMPANION_SIGNATURE"); ok {
		cfg.Signature = v
	}
	if v, ok := getEnvString("COMPANION_HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := getEnvInt("COMPANION_POMODORO_WORK_MINUTES"); ok && v > 0 {
		cfg.PomodoroWorkMins = v
	}
	if v, ok := getEnvInt("COMPANION_POMODORO_BREAK_MINUTES"); ok && v > 0 {
		cfg.PomodoroBreakMins = v
	}
	if v, ok := getEnvInt("COMPANION_POMODORO_LONG_BREAK_MINUTES"); ok && v > 0 {
		cfg.PomodoroLongMins = v
	}
	if v, ok := getEnvInt("COMPANION_POMODORO_SESSIONS"); ok && v > 0 {
		cfg.PomodoroSessions = v
	}
	return cfg
}

func (c RuntimeConfig) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: db path is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick interval must be positive, got %s", c.TickInterval)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("config: event buffer must be positive, got %d", c.EventBuffer)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format must be text or json, got %q", c.LogFormat)
	}
	return c.Pomodoro().Validate()
}

// Pomodoro returns the default pomodoro configuration in seconds.
func (c RuntimeConfig) Pomodoro() model.PomodoroConfig {
	return model.PomodoroConfig{
		WorkDuration:            c.PomodoroWorkMins * 60,
		BreakDuration:           c.PomodoroBreakMins * 60,
		LongBreakDuration:       c.PomodoroLongMins * 60,
		SessionsBeforeLongBreak: c.PomodoroSessions,
	}
}

// fileConfig is the YAML shape of companion.yml. Pointer fields tell an
// absent key apart from a zero value.
type fileConfig struct {
	DB            *string `yaml:"db"`
	EncryptionKey *string `yaml:"encryption_key"`
	TickInterval  *string `yaml:"tick_interval"`
	EventBuffer   *int    `yaml:"event_buffer"`
	Log           struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
	Actions struct {
		DesktopNotifications *bool   `yaml:"desktop_notifications"`
		Speech               *bool   `yaml:"speech"`
		Signature            *string `yaml:"signature"`
	} `yaml:"actions"`
	HTTP struct {
		Addr *string `yaml:"addr"`
	} `yaml:"http"`
	Pomodoro struct {
		WorkMinutes      *int `yaml:"work_minutes"`
		BreakMinutes     *int `yaml:"break_minutes"`
		LongBreakMinutes *int `yaml:"long_break_minutes"`
		Sessions         *int `yaml:"sessions"`
	} `yaml:"pomodoro"`
}

// FromYAML overlays the keys present in data onto base.
func FromYAML(data []byte, base RuntimeConfig) (RuntimeConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg := base
	setString(&cfg.DBPath, fc.DB)
	setString(&cfg.EncryptionKey, fc.EncryptionKey)
	if fc.TickInterval != nil {
		d, err := time.ParseDuration(*fc.TickInterval)
		if err != nil {
			return base, fmt.Errorf("config tick_interval: %w", err)
		}
		cfg.TickInterval = d
	}
	setInt(&cfg.EventBuffer, fc.EventBuffer)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)
	setBool(&cfg.DesktopNotifications, fc.Actions.DesktopNotifications)
	setBool(&cfg.Speech, fc.Actions.Speech)
	setString(&cfg.Signature, fc.Actions.Signature)
	setString(&cfg.HTTPAddr, fc.HTTP.Addr)
	setInt(&cfg.PomodoroWorkMins, fc.Pomodoro.WorkMinutes)
	setInt(&cfg.PomodoroBreakMins, fc.Pomodoro.BreakMinutes)
	setInt(&cfg.PomodoroLongMins, fc.Pomodoro.LongBreakMinutes)
	setInt(&cfg.PomodoroSessions, fc.Pomodoro.Sessions)
	return cfg, nil
}

// FromYAMLFile reads path and overlays it onto base.
func FromYAMLFile(path string, base RuntimeConfig) (RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	return FromYAML(data, base)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
