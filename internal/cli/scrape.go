package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/scrape"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

var (
	submitJob         jobFlags
	submitWait        bool
	submitDryRun      bool
	submitCheckRobots bool
	submitSaveAs      string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Submit scrape jobs and follow their progress",
}

var submitCmd = &cobra.Command{
	Use:   "submit [url]",
	Short: "Start a scrape job",
	Long: `Start a scrape job from flags, a job file (--file) or a saved configuration (--from).
Flags override values from the file or saved configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		var target string
		if len(args) == 1 {
			target = args[0]
		}
		cfg, err := submitJob.build(ctx, cmd, deck.store, target)
		if err != nil {
			return err
		}
		deck.logger.Debug("job resolved", zap.String("source", submitJob.describe()), zap.String("url", cfg.URL))

		if submitCheckRobots {
			verdict, err := jobconfig.CheckRobots(ctx, nil, cfg.URL, cfg.AdvancedOptions.UserAgent)
			switch {
			case err != nil:
				deck.logger.Warn("robots.txt check failed", zap.Error(err))
			case !verdict.Allowed:
				fmt.Fprintf(out, "%s %s disallows %s\n", yellow("warning:"), verdict.RobotsURL, cfg.URL)
			}
		}

		if submitSaveAs != "" {
			if err := deck.store.SaveConfig(ctx, submitSaveAs, cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved configuration %q\n", submitSaveAs)
		}

		if submitDryRun {
			sub, err := jobconfig.Prepare(cfg)
			if err != nil {
				return err
			}
			return printJSON(out, sub)
		}

		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		info, err := svc.Submit(ctx, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Submitted task %s (%s)\n", info.ID, statusWord(info.Status))

		if !submitWait {
			printTask(out, info)
			return nil
		}
		return waitAndReport(cmd, svc, info.ID)
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the current state of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		info, err := svc.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTask(cmd.OutOrStdout(), info)
		return nil
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <task-id>",
	Short: "Poll a task until it completes or fails",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		return waitAndReport(cmd, svc, args[0])
	},
}

func waitAndReport(cmd *cobra.Command, svc *scrape.Service, taskID string) error {
	out := cmd.OutOrStdout()
	info, err := svc.Wait(cmd.Context(), taskID, func(t types.TaskInfo) {
		fmt.Fprintf(out, "  %s %s\n", faint(taskID), statusWord(t.Status))
	})
	if err != nil {
		return fmt.Errorf("failed waiting for task %s: %w", taskID, err)
	}
	printTask(out, info)

	if info.Status == types.TaskFailed {
		msg := info.Error
		if msg == "" {
			msg = info.Message
		}
		return fmt.Errorf("task %s failed: %s", taskID, msg)
	}

	if len(info.ResultIDs) == 0 {
		results, err := svc.TaskResults(cmd.Context(), taskID)
		if err != nil {
			deck.logger.Warn("could not list task results", zap.Error(err))
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "  #%d %s %s\n", r.ID, r.URL, truncate(r.Summary(), 60))
		}
	}
	return nil
}

func printTask(w io.Writer, info *types.TaskInfo) {
	fmt.Fprintf(w, "Task:   %s\n", info.ID)
	fmt.Fprintf(w, "Status: %s\n", statusWord(info.Status))
	if info.URL != "" {
		fmt.Fprintf(w, "URL:    %s\n", info.URL)
	}
	if info.Message != "" {
		fmt.Fprintf(w, "Info:   %s\n", info.Message)
	}
	if info.Error != "" {
		fmt.Fprintf(w, "Error:  %s\n", red(info.Error))
	}
	if len(info.ResultIDs) > 0 {
		ids := make([]string, len(info.ResultIDs))
		for i, id := range info.ResultIDs {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "Results: %s\n", strings.Join(ids, ", "))
	}
}

func init() {
	submitJob.register(submitCmd)
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait for the task to finish")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "Print the request payload instead of submitting")
	submitCmd.Flags().BoolVar(&submitCheckRobots, "check-robots", false, "Warn when robots.txt disallows the URL")
	submitCmd.Flags().StringVar(&submitSaveAs, "save-as", "", "Also save the resolved job under this name")

	scrapeCmd.AddCommand(submitCmd, taskStatusCmd, waitCmd)
}
