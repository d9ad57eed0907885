package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/dashboard"
	"github.com/sandeepkv93/companiond/internal/events"
	"github.com/sandeepkv93/companiond/internal/scheduler"
	"github.com/sandeepkv93/companiond/internal/server"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Tick timers and fire automations until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				ctx, stop := context.WithCancel(ctx)
				defer stop()
				d, err := startDriver(ctx, a, stop)
				if err != nil {
					return err
				}
				defer d.Stop()
				a.logger.Info("companion running", "db", a.cfg.DBPath, "tick", a.cfg.TickInterval)
				watchEvents(ctx, a, d)
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Interactive dashboard; ticks the service while open",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				m := dashboard.NewModel(a.svc, a.cfg.TickInterval, dashboard.WithContext(ctx))
				return dashboard.Run(ctx, m)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the tick driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.HTTPAddr
				}
				handler, err := server.New(server.Config{Service: a.svc, BasePath: basePath, Logger: a.logger})
				if err != nil {
					return err
				}
				ctx, stop := context.WithCancel(ctx)
				defer stop()
				d, err := startDriver(ctx, a, stop)
				if err != nil {
					return err
				}
				defer d.Stop()
				go watchEvents(ctx, a, d)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving companion API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func assistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assist <command...>",
		Short: "Run an assistant command, e.g. `assist timer 5m tea`",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := commands.Run(ctx, strings.Join(args, " "), commands.ForService(a.svc))
				if err != nil {
					var ce *commands.CommandError
					if errors.As(err, &ce) {
						return fmt.Errorf("%s: %s", ce.Code, ce.Message)
					}
					return err
				}
				fmt.Println(res.Message)
				return nil
			})
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh base64 AES-256 key for COMPANION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

// startDriver ticks the service; stop is called once another process has
// taken the writer lease over, since nothing this process does would persist.
func startDriver(ctx context.Context, a *app, stop context.CancelFunc) (*scheduler.Driver, error) {
	tick := func(ctx context.Context, now time.Time, elapsed time.Duration) {
		a.svc.Tick(ctx, now, elapsed)
		if a.svc.LeaseLost() {
			a.logger.Error("database taken over by another process, shutting down", "db", a.cfg.DBPath)
			stop()
		}
	}
	d, err := scheduler.NewDriver(tick, a.cfg.TickInterval, a.cfg.EventBuffer, scheduler.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	d.Start(ctx)
	return d, nil
}

// watchEvents logs service events until ctx is cancelled. Beats are drained
// so the driver's drop counter only reflects a stuck consumer.
func watchEvents(ctx context.Context, a *app, d *scheduler.Driver) {
	evs, unsubscribe := a.svc.Bus().Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("companion stopping", "ticks", d.Ticks(), "slow", d.Slow(), "dropped_beats", d.Dropped(), "dropped_events", a.svc.Bus().Dropped())
			return
		case b, ok := <-d.C():
			if !ok {
				return
			}
			a.logger.Debug("tick", "seq", b.Seq, "elapsed", b.Elapsed, "took", b.Took)
		case ev, ok := <-evs:
			if !ok {
				return
			}
			logEvent(a, ev)
		}
	}
}

func logEvent(a *app, ev events.Event) {
	switch ev.Kind {
	case events.TimerCompleted, events.TimerPhaseChanged, events.AutomationFired:
		a.logger.Info(string(ev.Kind), "timer", ev.TimerID, "automation", ev.AutomationID, "detail", ev.Detail)
	case events.AutomationOrphaned:
		a.logger.Warn(string(ev.Kind), "automation", ev.AutomationID, "detail", ev.Detail)
	default:
		a.logger.Debug(string(ev.Kind), "timer", ev.TimerID, "automation", ev.AutomationID, "calendar", ev.CalendarID)
	}
}
