// Package jobconfig owns the scrape job configuration model: defaults,
// clamping, validation and conversion to the backend's wire payload.
package jobconfig

import (
	"net/url"
	"regexp"
	"strings"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// Bounds applied by Normalize
const (
	MinTimeoutMs     = 1000
	MaxTimeoutMs     = 300000
	MaxRetryAttempts = 10
	MinConcurrency   = 1
	MaxConcurrency   = 10
	MinRotationMin   = 1
	MinMaxPages      = 1
	MaxMaxPages      = 100
)

var headerName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Defaults returns a configuration populated with the form defaults
func Defaults() types.ScrapeJobConfig {
	return types.ScrapeJobConfig{
		DataType:         types.DataTypeAuto,
		ScrapeMethod:     types.ScrapeMethodSelenium,
		ExtractionMethod: types.ExtractionAuto,
		AdvancedOptions: types.AdvancedOptions{
			RequestIntervalMs: 2000,
			TimeoutMs:         30000,
			UserAgent:         customhttp.DefaultUserAgent,
			RetryAttempts:     3,
			Concurrency:       1,
			JavascriptEnabled: types.BoolPtr(true),
			FollowRedirects:   types.BoolPtr(true),
		},
		ProxySettings: types.ProxySettings{
			RotationIntervalMin: 5,
		},
		OutputOptions: types.OutputOptions{
			Format:    types.FormatJSON,
			Structure: types.StructureNested,
			MaxPages:  10,
		},
	}
}

// Normalize fills unset enums with defaults and clamps every numeric
// option into its documented range. It never fails.
func Normalize(cfg *types.ScrapeJobConfig) {
	def := Defaults()

	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.DataType == "" {
		cfg.DataType = def.DataType
	}
	if cfg.ScrapeMethod == "" {
		cfg.ScrapeMethod = def.ScrapeMethod
	}
	if cfg.ExtractionMethod == "" {
		cfg.ExtractionMethod = def.ExtractionMethod
	}

	adv := &cfg.AdvancedOptions
	adv.RequestIntervalMs = clamp(adv.RequestIntervalMs, 0, -1)
	if adv.TimeoutMs == 0 {
		adv.TimeoutMs = def.AdvancedOptions.TimeoutMs
	}
	adv.TimeoutMs = clamp(adv.TimeoutMs, MinTimeoutMs, MaxTimeoutMs)
	adv.RetryAttempts = clamp(adv.RetryAttempts, 0, MaxRetryAttempts)
	adv.Concurrency = clamp(adv.Concurrency, MinConcurrency, MaxConcurrency)
	if strings.TrimSpace(adv.UserAgent) == "" {
		adv.UserAgent = def.AdvancedOptions.UserAgent
	}
	if adv.JavascriptEnabled == nil {
		adv.JavascriptEnabled = types.BoolPtr(true)
	}
	if adv.FollowRedirects == nil {
		adv.FollowRedirects = types.BoolPtr(true)
	}

	proxy := &cfg.ProxySettings
	if proxy.RotationIntervalMin == 0 {
		proxy.RotationIntervalMin = def.ProxySettings.RotationIntervalMin
	}
	proxy.RotationIntervalMin = clamp(proxy.RotationIntervalMin, MinRotationMin, -1)

	out := &cfg.OutputOptions
	if out.Format == "" {
		out.Format = def.OutputOptions.Format
	}
	if out.Structure == "" {
		out.Structure = def.OutputOptions.Structure
	}
	if out.MaxPages == 0 {
		out.MaxPages = def.OutputOptions.MaxPages
	}
	out.MaxPages = clamp(out.MaxPages, MinMaxPages, MaxMaxPages)
}

// clamp limits v to [lo, hi]; a negative hi means unbounded above
func clamp(v types.FlexInt, lo, hi int) types.FlexInt {
	if int(v) < lo {
		return types.FlexInt(lo)
	}
	if hi >= 0 && int(v) > hi {
		return types.FlexInt(hi)
	}
	return v
}

// ValidateURL checks that raw is an absolute http or https URL
func ValidateURL(field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.NewValidationError(field, "URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return types.NewValidationError(field, "could not parse URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return types.NewValidationError(field, "URL must use http or https, got %q", raw)
	}
	if u.Host == "" || u.Hostname() == "" {
		return types.NewValidationError(field, "URL %q has no host", raw)
	}
	return nil
}

// Validate reports the first problem that would make the backend
// reject cfg. It performs no network calls.
func Validate(cfg types.ScrapeJobConfig) error {
	if err := ValidateURL("url", cfg.URL); err != nil {
		return err
	}
	if cfg.DataType != "" && !cfg.DataType.Valid() {
		return types.NewValidationError("dataType", "unknown data type %q", cfg.DataType)
	}
	if cfg.ScrapeMethod != "" && !cfg.ScrapeMethod.Valid() {
		return types.NewValidationError("scrapeMethod", "unknown scrape method %q", cfg.ScrapeMethod)
	}
	if cfg.ExtractionMethod != "" && !cfg.ExtractionMethod.Valid() {
		return types.NewValidationError("extractionMethod", "unknown extraction method %q", cfg.ExtractionMethod)
	}
	for i, row := range cfg.CustomSelectors {
		if row.SelectorType != "" && !row.SelectorType.Valid() {
			return types.NewValidationError("customSelectors", "row %d has unknown selector type %q", i+1, row.SelectorType)
		}
	}
	for name := range cfg.CustomHeaders {
		if !headerName.MatchString(name) {
			return types.NewValidationError("customHeaders", "invalid header name %q", name)
		}
	}
	out := cfg.OutputOptions
	if out.Format != "" && !out.Format.Valid() {
		return types.NewValidationError("outputOptions.format", "unknown format %q", out.Format)
	}
	if out.Structure != "" && !out.Structure.Valid() {
		return types.NewValidationError("outputOptions.structure", "unknown structure %q", out.Structure)
	}
	if cfg.ProxySettings.UseProxy && cfg.ProxySettings.ProxyID != nil && *cfg.ProxySettings.ProxyID <= 0 {
		return types.NewValidationError("proxySettings.proxyId", "must be a positive id")
	}
	return nil
}

// BuildSubmission maps cfg onto the flat wire payload. cfg is
// normalised on a copy first, so every numeric field is within bounds.
func BuildSubmission(cfg types.ScrapeJobConfig) types.Submission {
	Normalize(&cfg)
	adv := cfg.AdvancedOptions
	out := cfg.OutputOptions

	sub := types.Submission{
		URL:               cfg.URL,
		Keywords:          strings.TrimSpace(cfg.Keywords),
		DataType:          cfg.DataType,
		ScrapeMethod:      cfg.ScrapeMethod,
		UseSelenium:       cfg.ScrapeMethod.UsesBrowser(),
		ExtractionMethod:  cfg.ExtractionMethod,
		RequestIntervalMs: adv.RequestIntervalMs.Int(),
		Timeout:           adv.TimeoutMs.Int() / 1000,
		TimeoutMs:         adv.TimeoutMs.Int(),
		MaxRetries:        adv.RetryAttempts.Int(),
		Concurrency:       adv.Concurrency.Int(),
		JavascriptEnabled: types.BoolValue(adv.JavascriptEnabled, true),
		FollowRedirects:   types.BoolValue(adv.FollowRedirects, true),
		OutputFormat:      out.Format,
		OutputStructure:   out.Structure,
		CleanData:         out.CleanData,
		ConvertNumbers:    out.ConvertNumbers,
		ParseDates:        out.ParseDates,
		FollowPagination:  out.FollowPagination,
		MaxPages:          out.MaxPages.Int(),
	}
	sub.UserAgent, sub.TLSFingerprint = customhttp.ResolveUserAgent(adv.UserAgent)

	if len(cfg.CustomHeaders) > 0 {
		sub.CustomHeaders = make(map[string]string, len(cfg.CustomHeaders))
		for k, v := range cfg.CustomHeaders {
			sub.CustomHeaders[k] = v
		}
	}

	switch cfg.ExtractionMethod {
	case types.ExtractionCustom:
		sub.Selectors = Selectors(cfg.CustomSelectors)
	case types.ExtractionPattern:
		sub.Patterns = SelectedPatterns(cfg.DetectedPatterns)
	}

	if cfg.ProxySettings.UseProxy {
		sub.ProxyID = cfg.ProxySettings.ProxyID
		sub.RotateIP = cfg.ProxySettings.RotateIP
		if sub.RotateIP {
			sub.RotationIntervalMin = cfg.ProxySettings.RotationIntervalMin.Int()
		}
	}
	return sub
}

// Selectors converts selector rows into the fieldName keyed wire map.
// Rows missing a field name or selector are dropped; when a field name
// repeats, the later row wins.
func Selectors(rows []types.SelectorRow) map[string]types.SelectorSpec {
	out := make(map[string]types.SelectorSpec)
	for _, row := range rows {
		if !row.Complete() {
			continue
		}
		typ := row.SelectorType
		if typ == "" {
			typ = types.SelectorCSS
		}
		out[strings.TrimSpace(row.FieldName)] = types.SelectorSpec{
			Type:     typ,
			Selector: strings.TrimSpace(row.Selector),
		}
	}
	return out
}

// SelectedPatterns returns the types of the selected patterns in order
func SelectedPatterns(patterns []types.DetectedPattern) []string {
	var out []string
	for _, p := range patterns {
		if p.Selected {
			out = append(out, p.Type)
		}
	}
	return out
}

// Prepare validates cfg and builds its submission payload
func Prepare(cfg types.ScrapeJobConfig) (types.Submission, error) {
	if err := Validate(cfg); err != nil {
		return types.Submission{}, err
	}
	return BuildSubmission(cfg), nil
}
