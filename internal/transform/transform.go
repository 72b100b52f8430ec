// Package transform cleans result rows before export. Stages run in a
// fixed order and each one can be switched off independently.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// Case selects the case transform applied to string fields
type Case string

const (
	CaseNone  Case = ""
	CaseUpper Case = "upper"
	CaseLower Case = "lower"
)

// ParseCase accepts "", "none", "upper" and "lower"
func ParseCase(s string) (Case, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CaseNone, nil
	case "upper":
		return CaseUpper, nil
	case "lower":
		return CaseLower, nil
	}
	return CaseNone, types.NewValidationError("case", "unknown case %q (want none, upper or lower)", s)
}

// Options toggles the processing stages
type Options struct {
	RemoveDuplicates bool `json:"removeDuplicates" yaml:"removeDuplicates"`
	RemoveEmpty      bool `json:"removeEmpty" yaml:"removeEmpty"`
	TrimWhitespace   bool `json:"trimWhitespace" yaml:"trimWhitespace"`
	ConvertNumeric   bool `json:"convertNumeric" yaml:"convertNumeric"`
	Case             Case `json:"case" yaml:"case"`
	FormatDates      bool `json:"formatDates" yaml:"formatDates"`
	// Find is a regular expression; replacement is skipped when it is blank
	Find    string `json:"find" yaml:"find"`
	Replace string `json:"replace" yaml:"replace"`
}

// DefaultOptions enables deduplication, empty normalisation and trimming
func DefaultOptions() Options {
	return Options{RemoveDuplicates: true, RemoveEmpty: true, TrimWhitespace: true}
}

// Result holds the processed rows and any stage that had to be skipped
type Result struct {
	Rows     []*types.Row
	Warnings []*types.TransformError
}

type stage struct {
	name    string
	enabled bool
	run     func([]*types.Row) ([]*types.Row, error)
}

// Process applies the enabled stages in order: dedupe, empty
// normalisation, trim, numeric conversion, case, dates, find/replace.
// Input rows are never modified. A stage that fails or panics is
// recorded as a warning and the next stage continues from the last good
// row set.
func Process(rows []*types.Row, opts Options, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	stages := []stage{
		{"dedupe", opts.RemoveDuplicates, dedupe},
		{"empty", opts.RemoveEmpty, mapStrings(func(v any) any {
			if v == nil {
				return nil
			}
			if s, ok := v.(string); ok && s == "" {
				return nil
			}
			return v
		})},
		{"trim", opts.TrimWhitespace, mapStrings(func(v any) any {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
			return v
		})},
		{"numeric", opts.ConvertNumeric, mapStrings(convertNumeric)},
		{"case", opts.Case != CaseNone, caseStage(opts.Case)},
		{"dates", opts.FormatDates, mapStrings(formatDate)},
		{"replace", strings.TrimSpace(opts.Find) != "", replaceStage(opts.Find, opts.Replace)},
	}

	current := make([]*types.Row, len(rows))
	for i, r := range rows {
		current[i] = r.Clone()
	}

	var result Result
	for _, st := range stages {
		if !st.enabled {
			continue
		}
		next, err := runStage(st, current)
		if err != nil {
			terr := &types.TransformError{Stage: st.name, Err: err}
			logger.Warn("processing stage skipped", zap.String("stage", st.name), zap.Error(err))
			result.Warnings = append(result.Warnings, terr)
			continue
		}
		current = next
	}
	result.Rows = current
	return result
}

// runStage runs a stage against copies of the rows and recovers panics
func runStage(st stage, rows []*types.Row) (out []*types.Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	cloned := make([]*types.Row, len(rows))
	for i, r := range rows {
		cloned[i] = r.Clone()
	}
	return st.run(cloned)
}

// mapStrings applies fn to every top-level field of every row
func mapStrings(fn func(any) any) func([]*types.Row) ([]*types.Row, error) {
	return func(rows []*types.Row) ([]*types.Row, error) {
		for _, r := range rows {
			for _, k := range r.Keys() {
				v, _ := r.Get(k)
				r.Set(k, fn(v))
			}
		}
		return rows, nil
	}
}

// dedupe keeps the first of rows whose full serialisation is equal. The
// bloom filter answers "definitely new" for most rows; the exact set
// settles its false positives.
func dedupe(rows []*types.Row) ([]*types.Row, error) {
	filter := bloom.NewWithEstimates(uint(len(rows)+1), 0.01)
	seen := make(map[string]struct{}, len(rows))

	out := rows[:0]
	for _, r := range rows {
		b, err := r.MarshalJSON()
		if err != nil {
			return nil, err
		}
		key := string(b)
		if filter.TestString(key) {
			if _, dup := seen[key]; dup {
				continue
			}
		}
		filter.AddString(key)
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

var numericPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

func convertNumeric(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if t == "" || !numericPattern.MatchString(t) {
		return v
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return v
	}
	return f
}

func caseStage(c Case) func([]*types.Row) ([]*types.Row, error) {
	return func(rows []*types.Row) ([]*types.Row, error) {
		var fn func(string) string
		switch c {
		case CaseUpper:
			fn = strings.ToUpper
		case CaseLower:
			fn = strings.ToLower
		default:
			return nil, fmt.Errorf("unknown case %q", c)
		}
		return mapStrings(func(v any) any {
			if s, ok := v.(string); ok {
				return fn(s)
			}
			return v
		})(rows)
	}
}

var (
	isoDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	usDatePrefix  = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})`)
)

// formatDate rewrites strings starting with YYYY-MM-DD or MM/DD/YYYY to
// YYYY-MM-DD. Strings that only look like dates pass through unchanged.
func formatDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if m := isoDatePrefix.FindStringSubmatch(s); m != nil {
		if d, err := time.Parse("2006-01-02", m[1]); err == nil {
			return d.Format("2006-01-02")
		}
		return v
	}
	if m := usDatePrefix.FindStringSubmatch(s); m != nil {
		if d, err := time.Parse("01/02/2006", m[1]); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return v
}

func replaceStage(find, replace string) func([]*types.Row) ([]*types.Row, error) {
	return func(rows []*types.Row) ([]*types.Row, error) {
		re, err := regexp.Compile(find)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", find, err)
		}
		return mapStrings(func(v any) any {
			if s, ok := v.(string); ok {
				return re.ReplaceAllString(s, replace)
			}
			return v
		})(rows)
	}
}
