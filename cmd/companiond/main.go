package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandeepkv93/companiond/internal/actions"
	"github.com/sandeepkv93/companiond/internal/companion"
	"github.com/sandeepkv93/companiond/internal/config"
	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/logging"
	"github.com/sandeepkv93/companiond/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "companiond",
	Short: "Timers, automations and encrypted conversations",
	Long: `companiond keeps countdowns, stopwatches and pomodoros ticking, fires
automations on a clock or when a timer finishes, and stores conversations
encrypted at rest.

State lives in a single sqlite file (--db). Conversation text is sealed with
AES-GCM; without --key a key file is created next to the database.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COMPANION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path")
	rootCmd.PersistentFlags().String("key", "", "base64 AES-256 key for conversations")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "text or json")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	for _, name := range []string{"config", "db", "key", "log-level", "log-format", "json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(pomodoroCmd())
	rootCmd.AddCommand(automationCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(assistCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keygenCmd())
}

// runtimeConfig layers defaults, the YAML file, COMPANION_* variables and
// finally flags.
func runtimeConfig() (config.RuntimeConfig, error) {
	cfg := config.DefaultRuntimeConfig()
	if path := viper.GetString("config"); path != "" {
		var err error
		if cfg, err = config.FromYAMLFile(path, cfg); err != nil {
			return cfg, err
		}
	}
	cfg = config.RuntimeConfigFromEnv(cfg)
	if v := viper.GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v := viper.GetString("key"); v != "" {
		cfg.EncryptionKey = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, cfg.Validate()
}

type app struct {
	cfg    config.RuntimeConfig
	logger *slog.Logger
	store  *storage.SQLiteStore
	svc    *companion.Service
	writer bool
}

// openApp opens the database. A writer claims the store's lease before
// loading, so it fails fast while another process (usually a running
// daemon) is writing to the same database.
func openApp(ctx context.Context, writer bool) (*app, error) {
	cfg, err := runtimeConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	key, err := resolveKey(cfg, logger)
	if err != nil {
		return nil, err
	}
	codec, err := crypto.NewCipher(key)
	if err != nil {
		return nil, err
	}
	store, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	svc, err := companion.New(companion.Deps{
		Store:      store,
		Codec:      codec,
		Dispatcher: newDispatcher(cfg, logger),
		Bus:        events.NewBus(cfg.EventBuffer),
		Logger:     logger,
		Pomodoro:   cfg.Pomodoro(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if writer {
		if err := svc.Claim(ctx); err != nil {
			store.Close()
			if errors.Is(err, storage.ErrLeaseHeld) {
				return nil, fmt.Errorf("%s is in use: %w; stop the running companiond or use its HTTP API", cfg.DBPath, err)
			}
			return nil, err
		}
	}
	svc.Load(ctx)
	return &app{cfg: cfg, logger: logger, store: store, svc: svc, writer: writer}, nil
}

func (a *app) Close() {
	if a.writer {
		a.svc.Release(context.Background())
	}
	a.svc.Bus().Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "err", err)
	}
}

// withApp runs fn as the database's single writer.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	return runApp(ctx, true, fn)
}

// withReader runs fn against a loaded snapshot without claiming the lease.
// fn must not mutate.
func withReader(ctx context.Context, fn func(context.Context, *app) error) error {
	return runApp(ctx, false, fn)
}

func runApp(ctx context.Context, writer bool, fn func(context.Context, *app) error) error {
	a, err := openApp(ctx, writer)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newDispatcher(cfg config.RuntimeConfig, logger *slog.Logger) *actions.Dispatcher {
	var speaker actions.Speaker = actions.NoopSpeaker{}
	if cfg.Speech {
		speaker = actions.ExecSpeaker{}
	}
	var notifier actions.Notifier = actions.NoopNotifier{}
	if cfg.DesktopNotifications {
		notifier = actions.ExecNotifier{}
	}
	return actions.NewDispatcher(speaker, notifier, actions.LogSMSComposer{Logger: logger}, cfg.Signature, logger)
}

// resolveKey prefers the configured key and otherwise reads, or creates,
// <db>.key so conversations stay readable across runs.
func resolveKey(cfg config.RuntimeConfig, logger *slog.Logger) (string, error) {
	if cfg.EncryptionKey != "" {
		return cfg.EncryptionKey, nil
	}
	path := cfg.DBPath + ".key"
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read key file: %w", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	logger.Info("generated conversation key", "path", path)
	return key, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
