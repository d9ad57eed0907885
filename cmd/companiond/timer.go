package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/timers"
)

func timerCmd() *cobra.Command {
	tm := &cobra.Command{Use: "timer", Short: "Manage countdowns and stopwatches"}
	tm.AddCommand(timerCreateCmd())
	tm.AddCommand(timerListCmd())
	tm.AddCommand(timerLifecycleCmd("start", "Start or resume a timer"))
	tm.AddCommand(timerLifecycleCmd("pause", "Pause a running timer"))
	tm.AddCommand(timerLifecycleCmd("reset", "Reset a timer to its full duration"))
	tm.AddCommand(timerCancelCmd())
	return tm
}

func timerCreateCmd() *cobra.Command {
	var name, duration string
	var stopwatch, autoRestart, start bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a countdown (or --stopwatch)",
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := model.TimerTypeCountdown
			seconds := 0
			if stopwatch {
				typ = model.TimerTypeStopwatch
			} else {
				d, err := commands.ParseDuration(duration)
				if err != nil {
					return err
				}
				seconds = int(d.Seconds())
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := a.svc.CreateTimer(ctx, name, typ, seconds, timers.Options{AutoRestart: autoRestart})
				if err != nil {
					return err
				}
				if start {
					if t, _, err = a.svc.StartTimer(ctx, t.ID); err != nil {
						return err
					}
				}
				return printTimer(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "timer name")
	cmd.Flags().StringVarP(&duration, "duration", "d", "", "duration, e.g. 25 (minutes), 90s, 1h30m")
	cmd.Flags().BoolVar(&stopwatch, "stopwatch", false, "count up instead of down")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "restart the countdown when it finishes")
	cmd.Flags().BoolVar(&start, "start", false, "start immediately")
	return cmd
}

func timerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd.Context(), func(ctx context.Context, a *app) error {
				list := a.svc.Timers()
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Remaining", "Phase"})
				for _, t := range list {
					phase := ""
					if t.Pomodoro != nil {
						phase = fmt.Sprintf("%s %d/%d", t.Pomodoro.PhaseName(), t.Pomodoro.CurrentSession+1, t.Pomodoro.SessionsBeforeLongBreak)
					}
					tw.AppendRow(table.Row{t.ID, t.Name, t.Type, t.Status, commands.FormatSeconds(t.Remaining), phase})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func timerLifecycleCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id-or-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				op := map[string]func(context.Context, string) (model.Timer, timers.Outcome, error){
					"start": a.svc.StartTimer,
					"pause": a.svc.PauseTimer,
					"reset": a.svc.ResetTimer,
				}[verb]
				t, out, err := op(ctx, args[0])
				if err != nil {
					return err
				}
				if out == timers.NoOp {
					fmt.Fprintf(os.Stderr, "%s: nothing to do (%s)\n", verb, t.Status)
				}
				return printTimer(t)
			})
		},
	}
}

func timerCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cancel <id-or-name>",
		Aliases: []string{"delete", "rm"},
		Short:   "Delete a timer; dependent automations become orphaned",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := a.svc.DeleteTimer(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("cancelled %s\n", t.ID)
				return nil
			})
		},
	}
}

func pomodoroCmd() *cobra.Command {
	var work, brk, long string
	var sessions int
	var autoRestart, noStart bool
	cmd := &cobra.Command{
		Use:   "pomodoro [name]",
		Short: "Create and start a pomodoro timer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := model.PomodoroConfig{SessionsBeforeLongBreak: sessions, AutoRestart: autoRestart}
			for _, f := range []struct {
				raw string
				dst *int
			}{{work, &cfg.WorkDuration}, {brk, &cfg.BreakDuration}, {long, &cfg.LongBreakDuration}} {
				if f.raw == "" {
					continue
				}
				d, err := commands.ParseDuration(f.raw)
				if err != nil {
					return err
				}
				*f.dst = int(d.Seconds())
			}
			name := "pomodoro"
			if len(args) == 1 {
				name = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := a.svc.CreatePomodoro(ctx, name, cfg)
				if err != nil {
					return err
				}
				if !noStart {
					if t, _, err = a.svc.StartTimer(ctx, t.ID); err != nil {
						return err
					}
				}
				return printTimer(t)
			})
		},
	}
	cmd.Flags().StringVar(&work, "work", "", "work phase length (default from config)")
	cmd.Flags().StringVar(&brk, "break", "", "short break length")
	cmd.Flags().StringVar(&long, "long", "", "long break length")
	cmd.Flags().IntVar(&sessions, "sessions", 0, "work sessions before a long break")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "begin the next phase automatically")
	cmd.Flags().BoolVar(&noStart, "no-start", false, "create without starting")
	return cmd
}

func printTimer(t model.Timer) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	name := t.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Printf("%s  %s  %s  %s  %s\n", t.ID, name, t.Type, t.Status, commands.FormatSeconds(t.Remaining))
	return nil
}
