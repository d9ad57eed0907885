package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/config"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
)

func automationCmd() *cobra.Command {
	au := &cobra.Command{Use: "automation", Aliases: []string{"auto"}, Short: "Manage automations"}
	au.AddCommand(automationListCmd())
	au.AddCommand(automationCreateCmd())
	au.AddCommand(automationImportCmd())
	au.AddCommand(automationToggleCmd())
	au.AddCommand(automationPauseCmd())
	au.AddCommand(automationResumeCmd())
	au.AddCommand(automationDeleteCmd())
	au.AddCommand(automationFiringsCmd())
	return au
}

func automationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List automations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd.Context(), func(ctx context.Context, a *app) error {
				list := a.svc.Automations()
				if viper.GetBool("json") {
					return printJSON(list)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Trigger", "When", "Action", "State", "Last run"})
				for _, au := range list {
					last := ""
					if au.LastRun != nil {
						last = au.LastRun.Local().Format("Jan 2 15:04")
					}
					tw.AppendRow(table.Row{au.ID, au.Name, au.Trigger, when(au), au.Action.Type, commands.AutomationState(au, now), last})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func automationCreateCmd() *cobra.Command {
	var spec config.AutomationSpec
	var trigger, days, action string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an automation",
		Example: `  companiond automation create --name standup --trigger daily --time 09:00 --action reminder --message "stand up"
  companiond automation create --name tea --trigger timer_complete --timer tea --action speak --message "tea is ready"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Trigger = model.TriggerKind(trigger)
			spec.Action.Type = model.ActionType(action)
			if days != "" {
				parsed, err := commands.ParseDays(days)
				if err != nil {
					return err
				}
				spec.Days = parsed
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				au, err := a.svc.CreateAutomation(ctx, spec.Name, spec.Trigger, spec.TriggerConfig(), spec.Action)
				if err != nil {
					return err
				}
				return printAutomation(au)
			})
		},
	}
	cmd.Flags().StringVar(&spec.Name, "name", "", "automation name")
	cmd.Flags().StringVar(&trigger, "trigger", "", "time, daily, weekly or timer_complete")
	cmd.Flags().StringVar(&spec.Time, "time", "", "HH:MM for clock triggers")
	cmd.Flags().StringVar(&days, "days", "", "weekdays for weekly triggers, e.g. mon,wed,fri or weekdays")
	cmd.Flags().StringVar(&spec.Timer, "timer", "", "timer id or name for timer_complete")
	cmd.Flags().StringVar(&action, "action", "reminder", "speak, notify, reminder, affirmation or sms")
	cmd.Flags().StringVar(&spec.Action.Message, "message", "", "action message")
	cmd.Flags().StringVar(&spec.Action.PhoneNumber, "phone", "", "phone number for sms")
	cmd.Flags().BoolVar(&spec.Action.IncludeSignature, "signed", false, "append the configured signature")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("trigger")
	return cmd
}

func automationImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create automations from a YAML file",
		Long: `The file lists automations under a top-level "automations" key:

  automations:
    - name: standup
      trigger: weekly
      days: [1, 2, 3, 4, 5]
      time: "09:00"
      action: {type: reminder, message: stand up}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := config.AutomationsFromFile(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				for _, spec := range specs {
					au, err := a.svc.CreateAutomation(ctx, spec.Name, spec.Trigger, spec.TriggerConfig(), spec.Action)
					if err != nil {
						return fmt.Errorf("import %q: %w", spec.Name, err)
					}
					fmt.Printf("imported %s  %s\n", au.ID, au.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "automations.yml", "YAML file to import")
	return cmd
}

func automationIDCmd(use, short string, op func(context.Context, *app, string) (model.Automation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				au, err := op(ctx, a, args[0])
				if err != nil {
					return err
				}
				return printAutomation(au)
			})
		},
	}
}

func automationToggleCmd() *cobra.Command {
	return automationIDCmd("toggle", "Flip the enabled flag", func(ctx context.Context, a *app, id string) (model.Automation, error) {
		return a.svc.ToggleAutomation(ctx, id)
	})
}

func automationResumeCmd() *cobra.Command {
	return automationIDCmd("resume", "Clear a pause", func(ctx context.Context, a *app, id string) (model.Automation, error) {
		return a.svc.ResumeAutomation(ctx, id)
	})
}

func automationPauseCmd() *cobra.Command {
	var d time.Duration
	cmd := automationIDCmd("pause", "Suppress firing for a while", func(ctx context.Context, a *app, id string) (model.Automation, error) {
		return a.svc.PauseAutomation(ctx, id, d)
	})
	cmd.Flags().DurationVar(&d, "for", time.Hour, "pause length")
	return cmd
}

func automationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an automation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.svc.DeleteAutomation(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func automationFiringsCmd() *cobra.Command {
	var f storage.FiringListFilter
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "firings",
		Short: "Show recent automation firings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since > 0 {
				t := time.Now().Add(-since)
				f.Since = &t
			}
			return withReader(cmd.Context(), func(ctx context.Context, a *app) error {
				recs, err := a.svc.Firings(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Fired", "Automation", "Action", "Delivered", "SMS", "Detail"})
				for _, r := range recs {
					tw.AppendRow(table.Row{r.FiredAt.Local().Format("Jan 2 15:04:05"), r.AutomationName, r.ActionType, r.Delivered, r.SMSStatus, r.Detail})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AutomationID, "automation", "", "only this automation id")
	cmd.Flags().DurationVar(&since, "since", 0, "only firings newer than this, e.g. 24h")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum rows")
	return cmd
}

func when(a model.Automation) string {
	switch a.Trigger {
	case model.TriggerTimerComplete:
		return "timer " + a.TriggerConfig.TimerID
	case model.TriggerWeekly:
		days := ""
		for i, d := range a.TriggerConfig.DayOfWeek {
			if i > 0 {
				days += ","
			}
			days += time.Weekday(d).String()[:3]
		}
		return days + " " + a.TriggerConfig.Time
	default:
		return a.TriggerConfig.Time
	}
}

func printAutomation(a model.Automation) error {
	if viper.GetBool("json") {
		return printJSON(a)
	}
	fmt.Printf("%s  %s  %s %s  -> %s  [%s]\n", a.ID, a.Name, a.Trigger, when(a), a.Action.Type, commands.AutomationState(a, time.Now()))
	return nil
}
