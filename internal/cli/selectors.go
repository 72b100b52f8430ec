package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/renderer"
	"github.com/BenjaminSRussell/scrapedeck/internal/scrape"
	"github.com/BenjaminSRussell/scrapedeck/internal/selector"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

var (
	selRows      []string
	selFile      string
	selLocal     bool
	selRender    bool
	selResultID  int64
	selUserAgent string
	selNoJS      bool
)

var selectorsCmd = &cobra.Command{
	Use:     "selectors",
	Aliases: []string{"selector"},
	Short:   "Test custom selectors and detect page patterns",
}

var selectorsTestCmd = &cobra.Command{
	Use:   "test <url>",
	Short: "Try custom selectors against a page",
	Long: `Try each selector against the page. By default the backend evaluates them against the
live page; --local evaluates CSS and XPath selectors here against the fetched page, a stored
result's source (--result) or a page rendered in headless Chrome (--render). JSONPath
selectors are evaluated against the content of the --result.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageURL := args[0]
		rows, err := selectorRows()
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return types.NewValidationError("selector", "at least one --selector or a job --file with selectors is required")
		}

		out := cmd.OutOrStdout()
		if useLocalHTML() {
			src := &localSource{cmd: cmd, pageURL: pageURL}
			failed := 0
			for _, row := range rows {
				if !row.Complete() {
					fmt.Fprintf(out, "%-20s %s\n", row.FieldName, faint("skipped (incomplete)"))
					continue
				}
				p, err := src.preview(row)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%-20s %s %v\n", row.FieldName, red("invalid"), err)
					continue
				}
				printPreview(out, row, p.Count, p.Values)
				if p.Count == 0 {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d selectors matched nothing or were invalid", failed, len(rows))
			}
			return nil
		}

		tester := selector.NewTester(selector.NewService(deck.client, deck.logger))
		report, err := tester.TestAll(cmd.Context(), pageURL, rows)
		if err != nil {
			return err
		}
		for _, row := range report.Rows {
			switch {
			case !row.Complete():
				fmt.Fprintf(out, "%-20s %s\n", row.FieldName, faint("skipped (incomplete)"))
			case report.Errors[row.ID] != nil:
				fmt.Fprintf(out, "%-20s %s %v\n", row.FieldName, red("error"), report.Errors[row.ID])
			case row.Valid:
				fmt.Fprintf(out, "%-20s %s %s\n", row.FieldName, green("ok"), previewText(report.Previews.ByRow[row.ID]))
			default:
				fmt.Fprintf(out, "%-20s %s\n", row.FieldName, red("no match"))
			}
		}
		fmt.Fprintf(out, "%d of %d selectors passed\n", report.Passed(), len(report.Rows)-report.Skipped)
		if report.Passed() < len(report.Rows)-report.Skipped {
			return fmt.Errorf("%d selectors failed", len(report.Rows)-report.Skipped-report.Passed())
		}
		return nil
	},
}

var selectorsDetectCmd = &cobra.Command{
	Use:   "detect <url>",
	Short: "Find repeating structures worth extracting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageURL := args[0]
		var patterns []types.DetectedPattern

		if useLocalHTML() {
			html, err := localHTML(cmd, pageURL)
			if err != nil {
				return err
			}
			if patterns, err = selector.DetectLocal(html); err != nil {
				return err
			}
		} else {
			var err error
			patterns, err = selector.NewService(deck.client, deck.logger).DetectPatterns(cmd.Context(), pageURL)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if len(patterns) == 0 {
			fmt.Fprintln(out, "No repeating patterns found")
			return nil
		}
		fmt.Fprintf(out, "%-30s %-6s %s\n", "PATTERN", "COUNT", "DESCRIPTION")
		for _, p := range patterns {
			fmt.Fprintf(out, "%-30s %-6d %s\n", p.Type, p.Count, p.Description)
		}
		fmt.Fprintln(out, faint("Use scrape submit --pattern <type> to extract a pattern"))
		return nil
	},
}

func selectorRows() ([]types.SelectorRow, error) {
	var rows []types.SelectorRow
	if selFile != "" {
		cfg, err := jobconfig.LoadFile(selFile)
		if err != nil {
			return nil, err
		}
		rows = append(rows, cfg.CustomSelectors...)
	}
	for _, s := range selRows {
		row, err := jobconfig.ParseSelectorFlag(s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	jobconfig.AssignRowIDs(rows)
	return rows, nil
}

func useLocalHTML() bool {
	return selLocal || selRender || selResultID > 0
}

// localSource loads the page source and the stored result content once,
// on first use
type localSource struct {
	cmd     *cobra.Command
	pageURL string

	html    *string
	htmlErr error
	content []byte
}

func (l *localSource) preview(row types.SelectorRow) (*selector.Preview, error) {
	if row.SelectorType == types.SelectorJSONPath {
		if selResultID <= 0 {
			return nil, types.NewValidationError("result", "JSONPath selectors need --result to test locally")
		}
		if l.content == nil {
			svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
			r, err := svc.Get(l.cmd.Context(), selResultID)
			if err != nil {
				return nil, err
			}
			l.content = r.Content
			if len(l.content) == 0 {
				l.content = []byte("null")
			}
		}
		return selector.PreviewJSON(l.content, row.Selector)
	}

	if l.html == nil && l.htmlErr == nil {
		html, err := localHTML(l.cmd, l.pageURL)
		if err != nil {
			l.htmlErr = err
		} else {
			l.html = &html
		}
	}
	if l.htmlErr != nil {
		return nil, l.htmlErr
	}
	return selector.PreviewHTML(*l.html, row.SelectorType, row.Selector)
}

// localHTML loads the page source for local evaluation: a stored result,
// a headless Chrome render, or a plain fetch
func localHTML(cmd *cobra.Command, pageURL string) (string, error) {
	ctx := cmd.Context()
	switch {
	case selResultID > 0:
		svc := scrape.NewService(deck.client, deck.backoff(), deck.logger)
		return svc.RawHTML(ctx, selResultID)
	case selRender:
		ua, _ := customhttp.ResolveUserAgent(selUserAgent)
		r, err := renderer.NewChromeRenderer(ctx, renderer.Options{
			UserAgent:         ua,
			JavascriptEnabled: !selNoJS,
			Settle:            renderer.DefaultSettle,
			Logger:            deck.logger.Named("renderer"),
		})
		if err != nil {
			return "", err
		}
		defer r.Close()
		return r.Render(ctx, pageURL)
	}

	html, err := selector.FetchHTML(ctx, nil, pageURL, selUserAgent)
	if err != nil {
		return "", err
	}
	if renderer.NeedsRendering(html) {
		deck.logger.Warn("page looks script-built, results may differ from a browser scrape; try --render",
			zap.String("url", pageURL))
	}
	return html, nil
}

func printPreview(w io.Writer, row types.SelectorRow, count int, values []string) {
	word := green("ok")
	if count == 0 {
		word = red("no match")
	}
	fmt.Fprintf(w, "%-20s %s %d matches", row.FieldName, word, count)
	if len(values) > 0 {
		fmt.Fprintf(w, ": %s", truncate(strings.Join(values, " | "), 80))
	}
	fmt.Fprintln(w)
}

func previewText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return truncate(s, 80)
	}
	b, err := types.MarshalNoEscape(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return truncate(string(b), 80)
}

func init() {
	for _, c := range []*cobra.Command{selectorsTestCmd, selectorsDetectCmd} {
		fs := c.Flags()
		fs.BoolVar(&selLocal, "local", false, "Evaluate here against the fetched page instead of on the backend")
		fs.BoolVar(&selRender, "render", false, "Evaluate here against the page rendered in headless Chrome")
		fs.Int64Var(&selResultID, "result", 0, "Evaluate here against the stored source of this result")
		fs.StringVar(&selUserAgent, "user-agent", "", "User agent preset or string for local fetches")
		fs.BoolVar(&selNoJS, "no-js", false, "Disable JavaScript when rendering")
	}
	selectorsTestCmd.Flags().StringArrayVar(&selRows, "selector", nil, "Selector field=type:selector (repeatable)")
	selectorsTestCmd.Flags().StringVarP(&selFile, "file", "f", "", "Take selectors from a job file")

	selectorsCmd.AddCommand(selectorsTestCmd, selectorsDetectCmd)
}
