package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/scrapedeck/internal/auth"
	"github.com/BenjaminSRussell/scrapedeck/internal/config"
	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/logging"
	"github.com/BenjaminSRussell/scrapedeck/internal/storage"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

var (
	cfgFile   string
	baseURL   string
	logLevel  string
	logFormat string
)

// app holds what every command needs once flags and config are resolved
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *storage.Store
	client *customhttp.Client
}

var deck *app

var rootCmd = &cobra.Command{
	Use:   "scrapedeck",
	Short: "Configure, launch and inspect scrape jobs",
	Long: `scrapedeck drives a scraping backend from the command line: it submits scrape jobs,
follows their progress, cleans and exports results, and manages schedules and proxies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		deck = a
		return nil
	},
}

func setup(cmd *cobra.Command) (*app, error) {
	v := config.New()
	flags := map[string]string{
		"base-url":   config.KeyBaseURL,
		"log-level":  config.KeyLogLevel,
		"log-format": config.KeyLogFormat,
	}
	for name, key := range flags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := storage.Open(cfg.StorePath, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	session := auth.Resolve(cmd.Context(), store, cfg.AuthToken, cfg.AuthScheme)
	client, err := customhttp.NewClient(customhttp.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Session: session,
		Logger:  logger.Named("api"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, client: client}, nil
}

func (a *app) close() {
	if a == nil {
		return
	}
	a.store.Close()
	_ = a.logger.Sync()
}

func (a *app) backoff() customhttp.BackoffConfig {
	b := customhttp.DefaultBackoffConfig()
	b.Initial = a.cfg.PollInterval
	b.Max = a.cfg.PollMaxInterval
	return b
}

// Execute runs the command tree. ctx cancels every in-flight request.
func Execute(ctx context.Context) error {
	defer func() {
		deck.close()
		deck = nil
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default scrapedeck.yaml in . or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend API root, e.g. http://localhost:8000/api")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug/info/warn/error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console/json")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(schedulesCmd)
	rootCmd.AddCommand(proxiesCmd)
	rootCmd.AddCommand(selectorsCmd)
	rootCmd.AddCommand(configsCmd)
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func statusWord(status types.TaskStatus) string {
	switch status {
	case types.TaskCompleted:
		return green(string(status))
	case types.TaskFailed:
		return red(string(status))
	case types.TaskProcessing:
		return yellow(string(status))
	}
	return faint(string(status))
}

func activeWord(active bool) string {
	if active {
		return green("active")
	}
	return faint("inactive")
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, types.NewValidationError("id", "invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, types.NewValidationError("id", "at least one id is required")
	}
	return types.UniqueIDs(ids), nil
}

func parseID(arg string) (int64, error) {
	ids, err := parseIDs([]string{arg})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// reportBulk prints per-id failures and returns an error when any failed
func reportBulk(w io.Writer, verb string, bulk *types.BulkResult) error {
	fmt.Fprintf(w, "%s %d of %d\n", verb, len(bulk.Succeeded), bulk.Total())
	if bulk.OK() {
		return nil
	}
	ids := make([]int64, 0, len(bulk.Failed))
	for id := range bulk.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(w, "  %s %d: %v\n", red("failed"), id, bulk.Failed[id])
	}
	return bulk.Err()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
