package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/scrapedeck/internal/export"
	"github.com/BenjaminSRussell/scrapedeck/internal/results"
	"github.com/BenjaminSRussell/scrapedeck/internal/scrape"
	"github.com/BenjaminSRussell/scrapedeck/internal/selector"
	"github.com/BenjaminSRussell/scrapedeck/internal/storage"
	"github.com/BenjaminSRussell/scrapedeck/internal/transform"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// resultFilters are the listing filters shared by list and pull
type resultFilters struct {
	url      string
	keywords string
	dataType string
	status   string
	search   string
	since    string
	until    string
	page     int
	pageSize int
	all      bool
	maxPages int
}

func (f *resultFilters) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.url, "url", "", "Filter by URL substring")
	fs.StringVar(&f.keywords, "keywords", "", "Filter by keywords")
	fs.StringVar(&f.dataType, "data-type", "", "Filter by data type")
	fs.StringVar(&f.status, "status", "", "Filter by status")
	fs.StringVar(&f.search, "search", "", "Search inside result content")
	fs.StringVar(&f.since, "since", "", "Only results on or after this date (YYYY-MM-DD)")
	fs.StringVar(&f.until, "until", "", "Only results on or before this date (YYYY-MM-DD)")
	fs.IntVar(&f.page, "page", 0, "Page number")
	fs.IntVar(&f.pageSize, "page-size", 0, "Results per page")
	fs.BoolVar(&f.all, "all", false, "Follow pagination and read every page")
	fs.IntVar(&f.maxPages, "max-pages", 50, "Page limit when --all is set (0 for no limit)")
}

func (f *resultFilters) filters() (scrape.Filters, error) {
	out := scrape.Filters{
		URL:           f.url,
		Keywords:      f.keywords,
		DataType:      f.dataType,
		Status:        f.status,
		ContentSearch: f.search,
		Page:          f.page,
		PageSize:      f.pageSize,
	}
	var err error
	if out.StartDate, err = parseDay("since", f.since); err != nil {
		return out, err
	}
	if out.EndDate, err = parseDay("until", f.until); err != nil {
		return out, err
	}
	return out, nil
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, types.NewValidationError(field, "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func (f *resultFilters) fetch(cmd *cobra.Command, svc *scrape.Service) ([]types.ScrapedResult, int, error) {
	filters, err := f.filters()
	if err != nil {
		return nil, 0, err
	}
	if f.all {
		all, err := svc.ListAll(cmd.Context(), filters, f.maxPages)
		return all, len(all), err
	}
	page, err := svc.List(cmd.Context(), filters)
	if err != nil {
		return nil, 0, err
	}
	return page.Results, page.Count, nil
}

func defaultSnapshotPath() string {
	return filepath.Join(filepath.Dir(deck.cfg.StorePath), "results.jsonl")
}

var (
	listFilters resultFilters
	pullFilters resultFilters
	pullPath    string
	pullAppend  bool

	rawSummary bool

	downloadFormat string
	downloadDir    string

	deleteEach bool

	treeFile     string
	treeCollapse int

	linksSitemap string
	linksImages  bool

	exportFormat    string
	exportOutput    string
	exportDir       string
	exportStructure string
	exportSnapshot  string
	exportTransform transform.Options
	exportCase      string
	exportNoClean   bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect, clean and export scraped results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored results",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		items, count, err := listFilters.fetch(cmd, svc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-8s %-10s %-20s %-40s %s\n", "ID", "STATUS", "TIME", "URL", "SUMMARY")
		for _, r := range items {
			ts := ""
			if !r.Timestamp.IsZero() {
				ts = r.Timestamp.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%-8d %-10s %-20s %-40s %s\n", r.ID, r.Status, ts, truncate(r.URL, 40), truncate(r.Summary(), 50))
		}
		fmt.Fprintf(out, "%d shown, %d total\n", len(items), count)
		return nil
	},
}

var resultsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		r, err := svc.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	},
}

var resultsRawCmd = &cobra.Command{
	Use:   "raw <id>",
	Short: "Print the stored page source of a result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		html, err := svc.RawHTML(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !rawSummary {
			fmt.Fprint(cmd.OutOrStdout(), html)
			return nil
		}

		r, err := svc.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		summary, err := selector.Summarize(html, r.URL)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

var resultsDownloadCmd = &cobra.Command{
	Use:   "download <id>...",
	Short: "Download results exported by the backend",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		blob, err := svc.Download(cmd.Context(), scrape.DownloadFormat(strings.ToLower(downloadFormat)), ids)
		if err != nil {
			return err
		}

		dir := downloadDir
		if dir == "" {
			dir = deck.cfg.ExportDir
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		target := filepath.Join(dir, filepath.Base(blob.Filename))
		if err := os.WriteFile(target, blob.Data, 0644); err != nil {
			return fmt.Errorf("failed to write download: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d results to %s\n", len(ids), target)
		return nil
	},
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		out := cmd.OutOrStdout()

		if deleteEach || len(ids) == 1 {
			return reportBulk(out, "Deleted", svc.DeleteEach(cmd.Context(), ids))
		}
		if err := svc.BulkDelete(cmd.Context(), ids); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d results\n", len(ids))
		return nil
	},
}

var resultsTreeCmd = &cobra.Command{
	Use:   "tree [id]",
	Short: "Show result content as a tree",
	Long:  `Show the content of a result, or of a local JSON file with --file, as an indented tree.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		switch {
		case treeFile != "":
			b, err := os.ReadFile(treeFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", treeFile, err)
			}
			data = b
		case len(args) == 1:
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
			r, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			data = r.Content
		default:
			return types.NewValidationError("id", "a result id or --file is required")
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			data = []byte("null")
		}

		tree, err := results.ParseTree(data)
		if err != nil {
			return err
		}
		if treeCollapse > 0 {
			tree.CollapseAll(treeCollapse)
		}
		return tree.Render(cmd.OutOrStdout())
	},
}

var resultsLinksCmd = &cobra.Command{
	Use:   "links <id>...",
	Short: "List the URLs and images found in result content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		found, bulk := svc.GetMany(cmd.Context(), ids)

		var values []any
		for _, r := range found {
			v, err := results.DecodeOrdered(r.Content)
			if err != nil {
				deck.logger.Warn("skipping undecodable content", zap.Int64("id", r.ID), zap.Error(err))
				continue
			}
			values = append(values, v)
		}
		links := results.FindURLsAndImages(values)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "URLs (%d)\n", len(links.URLs))
		for _, u := range links.URLs {
			fmt.Fprintf(out, "  %s\n", u)
		}
		if linksImages {
			fmt.Fprintf(out, "Images (%d)\n", len(links.Images))
			for _, u := range links.Images {
				fmt.Fprintf(out, "  %s\n", u)
			}
		}

		if linksSitemap != "" {
			exp, err := export.NewExporter(deck.cfg.ExportDir)
			if err != nil {
				return err
			}
			path, n, err := exp.ExportSitemap(links.URLs, linksSitemap, export.DefaultSitemapConfig())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %d URLs to %s\n", n, path)
		}
		return bulk.Err()
	},
}

var resultsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Save results to a local snapshot for offline export",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		items, _, err := pullFilters.fetch(cmd, svc)
		if err != nil {
			return err
		}

		path := pullPath
		if path == "" {
			path = defaultSnapshotPath()
		}
		snap, err := storage.NewSnapshot(path)
		if err != nil {
			return err
		}
		if pullAppend {
			err = snap.Append(items)
		} else {
			err = snap.Write(items)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d results to %s\n", len(items), snap.Path())
		return nil
	},
}

var resultsExportCmd = &cobra.Command{
	Use:   "export [id]...",
	Short: "Clean results and export them as CSV, JSON or XML",
	Long: `Export results fetched by id, or every result in a local snapshot with --snapshot.
Rows pass through the processing stages (duplicates, empty values, whitespace, numbers,
case, dates, find/replace) before they are written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		var items []types.ScrapedResult
		var fetchErr error
		switch {
		case exportSnapshot != "":
			snap, err := storage.NewSnapshot(exportSnapshot)
			if err != nil {
				return err
			}
			loaded, skipped, err := snap.Load()
			if err != nil {
				return err
			}
			if skipped > 0 {
				fmt.Fprintf(out, "%s skipped %d unreadable snapshot lines\n", yellow("warning:"), skipped)
			}
			items = loaded
		case len(args) > 0:
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
			var bulk *types.BulkResult
			items, bulk = svc.GetMany(ctx, ids)
			fetchErr = bulk.Err()
		default:
			return types.NewValidationError("id", "result ids or --snapshot are required")
		}

		structure := types.OutputStructure(strings.ToLower(exportStructure))
		if !structure.Valid() {
			return types.NewValidationError("structure", "must be nested or flat, got %q", exportStructure)
		}
		rows, err := results.Rows(items, structure)
		if err != nil {
			return err
		}

		opts := exportTransform
		if opts.Case, err = transform.ParseCase(exportCase); err != nil {
			return err
		}
		if exportNoClean {
			opts = transform.Options{}
		}
		processed := transform.Process(rows, opts, deck.logger)
		for _, w := range processed.Warnings {
			fmt.Fprintf(out, "%s %v\n", yellow("warning:"), w)
		}

		dir := exportDir
		if dir == "" {
			dir = deck.cfg.ExportDir
		}
		exp, err := export.NewExporter(dir)
		if err != nil {
			return err
		}
		path, err := exp.ExportAs(types.OutputFormat(strings.ToLower(exportFormat)), processed.Rows, exportOutput)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d rows to %s\n", len(processed.Rows), path)
		return fetchErr
	},
}

func init() {
	listFilters.register(resultsListCmd)

	resultsRawCmd.Flags().BoolVar(&rawSummary, "summary", false, "Print title, meta tags, links and images instead of the source")

	resultsDownloadCmd.Flags().StringVar(&downloadFormat, "format", "csv", "Download format: csv/json")
	resultsDownloadCmd.Flags().StringVarP(&downloadDir, "output-dir", "o", "", "Directory to write to (default export.dir)")

	resultsDeleteCmd.Flags().BoolVar(&deleteEach, "each", false, "Delete one request per id and report partial failures")

	resultsTreeCmd.Flags().StringVar(&treeFile, "file", "", "Read JSON from a local file")
	resultsTreeCmd.Flags().IntVar(&treeCollapse, "collapse", 0, "Collapse containers deeper than this level")

	resultsLinksCmd.Flags().StringVar(&linksSitemap, "sitemap", "", "Also write the URLs as a sitemap with this file name")
	resultsLinksCmd.Flags().BoolVar(&linksImages, "images", true, "Also list images")

	pullFilters.register(resultsPullCmd)
	resultsPullCmd.Flags().StringVar(&pullPath, "snapshot", "", "Snapshot file (default results.jsonl next to the store)")
	resultsPullCmd.Flags().BoolVar(&pullAppend, "append", false, "Append to the snapshot instead of replacing it")

	defaults := transform.DefaultOptions()
	fs := resultsExportCmd.Flags()
	fs.StringVar(&exportFormat, "format", "csv", "Export format: csv/json/xml")
	fs.StringVarP(&exportOutput, "output", "o", export.DefaultFilename, "Output file name")
	fs.StringVar(&exportDir, "output-dir", "", "Directory to write to (default export.dir)")
	fs.StringVar(&exportStructure, "structure", string(types.StructureNested), "Row structure: nested/flat")
	fs.StringVar(&exportSnapshot, "snapshot", "", "Export every result in this snapshot file")
	fs.BoolVar(&exportTransform.RemoveDuplicates, "dedupe", defaults.RemoveDuplicates, "Remove duplicate rows")
	fs.BoolVar(&exportTransform.RemoveEmpty, "drop-empty", defaults.RemoveEmpty, "Turn empty strings into null")
	fs.BoolVar(&exportTransform.TrimWhitespace, "trim", defaults.TrimWhitespace, "Trim whitespace")
	fs.BoolVar(&exportTransform.ConvertNumeric, "numbers", false, "Convert numeric strings to numbers")
	fs.StringVar(&exportCase, "case", "none", "Change string case: none/upper/lower")
	fs.BoolVar(&exportTransform.FormatDates, "dates", false, "Normalise dates to YYYY-MM-DD")
	fs.StringVar(&exportTransform.Find, "find", "", "Regular expression to replace")
	fs.StringVar(&exportTransform.Replace, "replace", "", "Replacement for --find ($1 refers to groups)")
	fs.BoolVar(&exportNoClean, "raw", false, "Skip every processing stage")

	resultsCmd.AddCommand(
		resultsListCmd,
		resultsGetCmd,
		resultsRawCmd,
		resultsDownloadCmd,
		resultsDeleteCmd,
		resultsTreeCmd,
		resultsLinksCmd,
		resultsPullCmd,
		resultsExportCmd,
	)
}
