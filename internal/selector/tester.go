package selector

import (
	"context"
	"strings"

	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// SelectorTester evaluates one selector against a page
type SelectorTester interface {
	Test(ctx context.Context, pageURL string, typ types.SelectorType, selector string) (*types.SelectorTestResult, error)
}

// Previews holds the preview values returned by successful tests.
// ByField is keyed by field name and takes the value of the last row
// (in row order) that used the name; ByRow is keyed by row ID and never
// collides.
type Previews struct {
	ByField map[string]any
	ByRow   map[string]any
}

// Report is the outcome of testing a set of selector rows
type Report struct {
	Rows     []types.SelectorRow
	Previews Previews
	// Errors holds per-row failures keyed by row ID
	Errors  map[string]error
	Skipped int
}

// Passed counts rows marked valid
func (r *Report) Passed() int {
	n := 0
	for _, row := range r.Rows {
		if row.Valid {
			n++
		}
	}
	return n
}

// Tester runs selector tests for every row of a job concurrently
type Tester struct {
	svc SelectorTester
	// Concurrency bounds in-flight test calls; zero means one per row
	Concurrency int
}

// NewTester creates a tester over svc
func NewTester(svc SelectorTester) *Tester {
	return &Tester{svc: svc}
}

type outcome struct {
	res *types.SelectorTestResult
	err error
}

// TestAll issues one test per complete row and returns updated copies
// of the rows with Valid set from each result. Incomplete rows are
// skipped and left invalid. Calls run concurrently but previews are
// applied in row order, so a repeated field name resolves to the later
// row regardless of which call finished first.
func (t *Tester) TestAll(ctx context.Context, pageURL string, rows []types.SelectorRow) (*Report, error) {
	if err := jobconfig.ValidateURL("url", pageURL); err != nil {
		return nil, err
	}

	out := make([]types.SelectorRow, len(rows))
	copy(out, rows)
	jobconfig.AssignRowIDs(out)

	report := &Report{
		Rows:     out,
		Previews: Previews{ByField: map[string]any{}, ByRow: map[string]any{}},
		Errors:   map[string]error{},
	}

	limit := t.Concurrency
	if limit <= 0 {
		limit = len(out)
	}
	if limit == 0 {
		return report, nil
	}

	results := make([]outcome, len(out))
	var pending []int
	for i := range out {
		out[i].Valid = false
		if !out[i].Complete() {
			report.Skipped++
			continue
		}
		pending = append(pending, i)
	}

	types.ForEachLimit(len(pending), limit, func(k int) {
		i := pending[k]
		typ := out[i].SelectorType
		if typ == "" {
			typ = types.SelectorCSS
		}
		res, err := t.svc.Test(ctx, pageURL, typ, strings.TrimSpace(out[i].Selector))
		results[i] = outcome{res: res, err: err}
	})

	for i := range out {
		if !out[i].Complete() {
			continue
		}
		o := results[i]
		switch {
		case o.err != nil:
			report.Errors[out[i].ID] = o.err
		case o.res != nil && o.res.Success:
			out[i].Valid = true
			field := strings.TrimSpace(out[i].FieldName)
			report.Previews.ByField[field] = o.res.Preview
			report.Previews.ByRow[out[i].ID] = o.res.Preview
		}
	}
	return report, nil
}
