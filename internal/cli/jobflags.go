package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/storage"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// jobFlags are the flags that describe a scrape job. Values given on the
// command line override the job file or saved configuration they start
// from.
type jobFlags struct {
	file       string
	saved      string
	keywords   string
	dataType   string
	method     string
	extraction string
	selectors  []string
	patterns   []string
	headers    []string

	userAgent   string
	intervalMs  int
	timeoutMs   int
	retries     int
	concurrency int
	noJS        bool
	noRedirects bool

	proxyID     int64
	rotateIP    bool
	rotationMin int

	format       string
	structure    string
	cleanData    bool
	convertNums  bool
	parseDates   bool
	followPaging bool
	maxPages     int
}

func (f *jobFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.file, "file", "f", "", "Job definition file (YAML or JSON)")
	fs.StringVar(&f.saved, "from", "", "Start from a saved configuration")
	fs.StringVar(&f.keywords, "keywords", "", "Keywords to look for")
	fs.StringVar(&f.dataType, "data-type", "", "auto/full_page/structured/text_only/links/images/tables/custom")
	fs.StringVar(&f.method, "method", "", "Backend fetch engine: selenium/beautifulsoup/both")
	fs.StringVar(&f.extraction, "extraction", "", "Extraction method: auto/pattern/custom")
	fs.StringArrayVar(&f.selectors, "selector", nil, "Custom selector field=type:selector (repeatable)")
	fs.StringSliceVar(&f.patterns, "pattern", nil, "Detected pattern types to extract")
	fs.StringArrayVar(&f.headers, "header", nil, "Extra request header Name=value (repeatable)")

	fs.StringVar(&f.userAgent, "user-agent", "", "User agent preset name or literal string")
	fs.IntVar(&f.intervalMs, "interval-ms", 0, "Delay between requests in milliseconds")
	fs.IntVar(&f.timeoutMs, "timeout-ms", 0, "Per-request timeout in milliseconds")
	fs.IntVar(&f.retries, "retries", 0, "Retry attempts")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Concurrent requests")
	fs.BoolVar(&f.noJS, "no-js", false, "Disable JavaScript on the backend browser")
	fs.BoolVar(&f.noRedirects, "no-redirects", false, "Do not follow redirects")

	fs.Int64Var(&f.proxyID, "proxy", 0, "Backend proxy id to use")
	fs.BoolVar(&f.rotateIP, "rotate-ip", false, "Rotate the proxy IP")
	fs.IntVar(&f.rotationMin, "rotation-min", 0, "Minutes between IP rotations")

	fs.StringVar(&f.format, "format", "", "Stored output format: json/csv/xml/text")
	fs.StringVar(&f.structure, "structure", "", "Stored output structure: nested/flat")
	fs.BoolVar(&f.cleanData, "clean", false, "Ask the backend to clean data")
	fs.BoolVar(&f.convertNums, "convert-numbers", false, "Ask the backend to convert numbers")
	fs.BoolVar(&f.parseDates, "parse-dates", false, "Ask the backend to parse dates")
	fs.BoolVar(&f.followPaging, "follow-pagination", false, "Follow pagination links")
	fs.IntVar(&f.maxPages, "max-pages", 0, "Maximum pages when following pagination")
}

// build resolves the job: file or saved configuration first (defaults
// otherwise), then any flags that were set, then the URL argument
func (f *jobFlags) build(ctx context.Context, cmd *cobra.Command, store *storage.Store, url string) (types.ScrapeJobConfig, error) {
	cfg := jobconfig.Defaults()

	switch {
	case f.file != "" && f.saved != "":
		return cfg, types.NewValidationError("file", "--file and --from cannot be combined")
	case f.file != "":
		loaded, err := jobconfig.LoadFile(f.file)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	case f.saved != "":
		saved, err := store.LoadConfig(ctx, f.saved)
		if err != nil {
			return cfg, err
		}
		cfg = saved.Config
	}

	changed := cmd.Flags().Changed
	if url != "" {
		cfg.URL = url
	}
	if changed("keywords") {
		cfg.Keywords = f.keywords
	}
	if changed("data-type") {
		cfg.DataType = types.DataType(strings.ToLower(f.dataType))
	}
	if changed("method") {
		cfg.ScrapeMethod = types.ScrapeMethod(strings.ToLower(f.method))
	}
	if changed("extraction") {
		cfg.ExtractionMethod = types.ExtractionMethod(strings.ToLower(f.extraction))
	}

	if len(f.selectors) > 0 {
		for _, s := range f.selectors {
			row, err := jobconfig.ParseSelectorFlag(s)
			if err != nil {
				return cfg, err
			}
			cfg.CustomSelectors = append(cfg.CustomSelectors, row)
		}
		if !changed("extraction") {
			cfg.ExtractionMethod = types.ExtractionCustom
		}
	}
	if len(f.patterns) > 0 {
		for _, p := range f.patterns {
			cfg.DetectedPatterns = append(cfg.DetectedPatterns, types.DetectedPattern{Type: strings.TrimSpace(p), Selected: true})
		}
		if !changed("extraction") {
			cfg.ExtractionMethod = types.ExtractionPattern
		}
	}
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, "=")
		if !ok {
			name, value, ok = strings.Cut(h, ":")
		}
		if !ok {
			return cfg, types.NewValidationError("header", "expected Name=value, got %q", h)
		}
		if cfg.CustomHeaders == nil {
			cfg.CustomHeaders = make(map[string]string)
		}
		cfg.CustomHeaders[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	adv := &cfg.AdvancedOptions
	if changed("user-agent") {
		adv.UserAgent = f.userAgent
	}
	if changed("interval-ms") {
		adv.RequestIntervalMs = types.FlexInt(f.intervalMs)
	}
	if changed("timeout-ms") {
		adv.TimeoutMs = types.FlexInt(f.timeoutMs)
	}
	if changed("retries") {
		adv.RetryAttempts = types.FlexInt(f.retries)
	}
	if changed("concurrency") {
		adv.Concurrency = types.FlexInt(f.concurrency)
	}
	if changed("no-js") {
		adv.JavascriptEnabled = types.BoolPtr(!f.noJS)
	}
	if changed("no-redirects") {
		adv.FollowRedirects = types.BoolPtr(!f.noRedirects)
	}

	if changed("proxy") {
		cfg.ProxySettings.UseProxy = f.proxyID > 0
		if f.proxyID > 0 {
			id := f.proxyID
			cfg.ProxySettings.ProxyID = &id
		}
	}
	if changed("rotate-ip") {
		cfg.ProxySettings.RotateIP = f.rotateIP
	}
	if changed("rotation-min") {
		cfg.ProxySettings.RotationIntervalMin = types.FlexInt(f.rotationMin)
	}

	out := &cfg.OutputOptions
	if changed("format") {
		out.Format = types.OutputFormat(strings.ToLower(f.format))
	}
	if changed("structure") {
		out.Structure = types.OutputStructure(strings.ToLower(f.structure))
	}
	if changed("clean") {
		out.CleanData = f.cleanData
	}
	if changed("convert-numbers") {
		out.ConvertNumbers = f.convertNums
	}
	if changed("parse-dates") {
		out.ParseDates = f.parseDates
	}
	if changed("follow-pagination") {
		out.FollowPagination = f.followPaging
	}
	if changed("max-pages") {
		out.MaxPages = types.FlexInt(f.maxPages)
	}

	jobconfig.Normalize(&cfg)
	if err := jobconfig.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (f *jobFlags) describe() string {
	if f.file != "" {
		return fmt.Sprintf("job file %s", f.file)
	}
	if f.saved != "" {
		return fmt.Sprintf("saved configuration %q", f.saved)
	}
	return "flags"
}
