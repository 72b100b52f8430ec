package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/scrapedeck/internal/schedule"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

var (
	schedActive    string
	schedFrequency string
	schedSearch    string
	schedPage      int

	schedFile     string
	schedName     string
	schedURL      string
	schedFreq     string
	schedTime     string
	schedDays     []string
	schedDayOfMon int
	schedCron     string
	schedEmail    string
	schedTimeout  int
	schedInactive bool
	schedToggleTo string
)

var schedulesCmd = &cobra.Command{
	Use:     "schedules",
	Aliases: []string{"schedule"},
	Short:   "Manage recurring scrape schedules",
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		active, err := parseOptionalBool("active", schedActive)
		if err != nil {
			return err
		}
		svc := schedule.NewService(deck.client, deck.logger)
		page, err := svc.List(cmd.Context(), schedule.Filters{
			Active:    active,
			Frequency: types.Frequency(strings.ToLower(schedFrequency)),
			Search:    schedSearch,
			Page:      schedPage,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-24s %-10s %-9s %-20s %s\n", "ID", "NAME", "FREQUENCY", "STATE", "NEXT RUN", "URL")
		for _, sc := range page.Results {
			next := sc.NextRunDisplay
			if next == "" && sc.NextRun != nil {
				next = sc.NextRun.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%-6d %-24s %-10s %-9s %-20s %s\n",
				sc.ID, truncate(sc.Name, 24), sc.Frequency, activeWord(sc.IsActive), next, sc.URL)
		}
		fmt.Fprintf(out, "%d shown, %d total\n", len(page.Results), page.Count)
		return nil
	},
}

var schedulesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one schedule as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		sc, err := schedule.NewService(deck.client, deck.logger).Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sc)
	},
}

var schedulesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schedule from a file and/or flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := types.Schedule{IsActive: true}
		if schedFile != "" {
			loaded, err := schedule.LoadFile(schedFile)
			if err != nil {
				return err
			}
			sc = loaded
		}
		applyScheduleFlags(cmd, &sc)

		created, err := schedule.NewService(deck.client, deck.logger).Create(cmd.Context(), sc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created schedule %d (%s)\n", created.ID, created.Name)
		return nil
	},
}

var schedulesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a schedule; unset flags keep their current values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc := schedule.NewService(deck.client, deck.logger)

		var sc types.Schedule
		if schedFile != "" {
			if sc, err = schedule.LoadFile(schedFile); err != nil {
				return err
			}
		} else {
			current, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			sc = *current
		}
		applyScheduleFlags(cmd, &sc)

		updated, err := svc.Update(cmd.Context(), id, sc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated schedule %d (%s)\n", updated.ID, updated.Name)
		return nil
	},
}

var schedulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete schedules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		bulk := schedule.NewService(deck.client, deck.logger).DeleteEach(cmd.Context(), ids)
		return reportBulk(cmd.OutOrStdout(), "Deleted", bulk)
	},
}

var schedulesRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a schedule now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		res, err := schedule.NewService(deck.client, deck.logger).RunNow(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Schedule %d started", id)
		if res.TaskID != "" {
			fmt.Fprintf(out, " as task %s", res.TaskID)
		}
		fmt.Fprintln(out)
		if res.Message != "" {
			fmt.Fprintln(out, res.Message)
		}
		return nil
	},
}

var schedulesToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Activate or deactivate a schedule",
	Long:  `Set the schedule's active flag with --active=true|false, or flip it when --active is not given.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc := schedule.NewService(deck.client, deck.logger)

		want, err := parseOptionalBool("active", schedToggleTo)
		if err != nil {
			return err
		}
		if want == nil {
			current, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			flipped := !current.IsActive
			want = &flipped
		}

		if err := svc.ToggleActive(cmd.Context(), id, *want); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %d is now %s\n", id, activeWord(*want))
		return nil
	},
}

func applyScheduleFlags(cmd *cobra.Command, sc *types.Schedule) {
	changed := cmd.Flags().Changed
	if changed("name") {
		sc.Name = schedName
	}
	if changed("url") {
		sc.URL = schedURL
	}
	if changed("frequency") {
		sc.Frequency = types.Frequency(schedFreq)
	}
	if changed("time") {
		sc.Time = schedTime
	}
	if changed("days") {
		sc.DaysOfWeek = sc.DaysOfWeek[:0]
		for _, d := range schedDays {
			sc.DaysOfWeek = append(sc.DaysOfWeek, types.Weekday(d))
		}
	}
	if changed("day-of-month") {
		dom := types.FlexInt(schedDayOfMon)
		sc.DayOfMonth = &dom
	}
	if changed("cron") {
		sc.CronExpression = schedCron
	}
	if changed("notify") {
		sc.NotificationEmail = schedEmail
		sc.NotifyOnCompletion = schedEmail != ""
	}
	if changed("timeout") {
		sc.TimeoutSec = types.FlexInt(schedTimeout)
	}
	if changed("inactive") {
		sc.IsActive = !schedInactive
	}
}

// parseOptionalBool maps "" to nil so filters can leave a field unset
func parseOptionalBool(field, s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "true", "yes", "1":
		return types.BoolPtr(true), nil
	case "false", "no", "0":
		return types.BoolPtr(false), nil
	}
	return nil, types.NewValidationError(field, "expected true or false, got %q", s)
}

func init() {
	schedulesListCmd.Flags().StringVar(&schedActive, "active", "", "Filter by active state (true/false)")
	schedulesListCmd.Flags().StringVar(&schedFrequency, "frequency", "", "Filter by frequency")
	schedulesListCmd.Flags().StringVar(&schedSearch, "search", "", "Search by name or URL")
	schedulesListCmd.Flags().IntVar(&schedPage, "page", 0, "Page number")

	for _, c := range []*cobra.Command{schedulesCreateCmd, schedulesUpdateCmd} {
		fs := c.Flags()
		fs.StringVarP(&schedFile, "file", "f", "", "Schedule definition file (YAML or JSON)")
		fs.StringVar(&schedName, "name", "", "Schedule name")
		fs.StringVar(&schedURL, "url", "", "URL to scrape")
		fs.StringVar(&schedFreq, "frequency", "", "hourly/daily/weekly/monthly/custom")
		fs.StringVar(&schedTime, "time", "", "Time of day HH:MM")
		fs.StringSliceVar(&schedDays, "days", nil, "Days for weekly schedules, e.g. mon,wed,fri")
		fs.IntVar(&schedDayOfMon, "day-of-month", 0, "Day for monthly schedules (1-31)")
		fs.StringVar(&schedCron, "cron", "", "Cron expression for custom schedules")
		fs.StringVar(&schedEmail, "notify", "", "Email to notify on completion")
		fs.IntVar(&schedTimeout, "timeout", 0, "Job timeout in seconds (1-300)")
		fs.BoolVar(&schedInactive, "inactive", false, "Create or leave the schedule inactive")
	}

	schedulesToggleCmd.Flags().StringVar(&schedToggleTo, "active", "", "Target state (true/false); flips when unset")

	schedulesCmd.AddCommand(
		schedulesListCmd,
		schedulesGetCmd,
		schedulesCreateCmd,
		schedulesUpdateCmd,
		schedulesDeleteCmd,
		schedulesRunCmd,
		schedulesToggleCmd,
	)
}
