// Package scrape submits scrape jobs, follows their status and manages
// the scraped results stored by the backend.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const (
	scrapeNowPath  = "/scraped-data/scrape_now/"
	resultsPath    = "/scraped-data/"
	bulkDeletePath = "/scraped-data/bulk_delete/"
	tasksPath      = "/tasks/"

	// maxPollFailures is how many consecutive transient errors Wait
	// tolerates before giving up
	maxPollFailures = 3
)

// DownloadFormat is a server-side export format
type DownloadFormat string

const (
	DownloadCSV  DownloadFormat = "csv"
	DownloadJSON DownloadFormat = "json"
)

// Filters narrow a result listing. Zero values are not sent.
type Filters struct {
	URL           string
	Keywords      string
	DataType      string
	Status        string
	ContentSearch string
	StartDate     time.Time
	EndDate       time.Time
	Page          int
	PageSize      int
}

// Query encodes the filters as request parameters
func (f Filters) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("url", f.URL)
	set("keywords", f.Keywords)
	set("data_type", f.DataType)
	set("status", f.Status)
	set("content_search", f.ContentSearch)
	if !f.StartDate.IsZero() {
		q.Set("start_date", f.StartDate.Format("2006-01-02"))
	}
	if !f.EndDate.IsZero() {
		q.Set("end_date", f.EndDate.Format("2006-01-02"))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(f.PageSize))
	}
	return q
}

// Service wraps the scraping endpoints of the backend
type Service struct {
	client  *customhttp.Client
	backoff *customhttp.Backoff
	logger  *zap.Logger
}

// NewService creates a new scrape service
func NewService(client *customhttp.Client, backoff customhttp.BackoffConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:  client,
		backoff: customhttp.NewBackoff(backoff),
		logger:  logger,
	}
}

// Submit validates cfg and starts a scrape. A ValidationError is
// returned before any request is made.
func (s *Service) Submit(ctx context.Context, cfg types.ScrapeJobConfig) (*types.TaskInfo, error) {
	sub, err := jobconfig.Prepare(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ExtractionMethod == types.ExtractionCustom && len(sub.Selectors) == 0 {
		s.logger.Warn("custom extraction without complete selectors, backend will auto-detect",
			zap.String("url", sub.URL))
	}

	var info types.TaskInfo
	if err := s.client.PostJSON(ctx, scrapeNowPath, sub, &info); err != nil {
		return nil, fmt.Errorf("failed to submit scrape: %w", err)
	}
	if info.URL == "" {
		info.URL = sub.URL
	}
	s.logger.Info("scrape submitted", zap.String("task", info.ID), zap.String("status", string(info.Status)))
	return &info, nil
}

// Status reads the current state of a submitted job
func (s *Service) Status(ctx context.Context, taskID string) (*types.TaskInfo, error) {
	if taskID == "" {
		return nil, types.NewValidationError("task", "task id is required")
	}
	var info types.TaskInfo
	if err := s.client.GetJSON(ctx, tasksPath+url.PathEscape(taskID)+"/", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	if info.ID == "" {
		info.ID = taskID
	}
	return &info, nil
}

// Wait polls Status until the job reaches completed or failed, calling
// onUpdate whenever the status changes. Transient poll failures are
// retried with backoff; ctx cancellation stops the wait.
func (s *Service) Wait(ctx context.Context, taskID string, onUpdate func(types.TaskInfo)) (*types.TaskInfo, error) {
	var last types.TaskStatus
	failures := 0

	for attempt := 0; ; attempt++ {
		info, err := s.Status(ctx, taskID)
		switch {
		case err == nil:
			failures = 0
			if info.Status != last && onUpdate != nil {
				onUpdate(*info)
			}
			last = info.Status
			if info.Status.Terminal() {
				return info, nil
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case customhttp.Transient(err) && failures < maxPollFailures:
			failures++
			s.logger.Warn("status poll failed, retrying", zap.String("task", taskID), zap.Error(err))
		default:
			return nil, err
		}

		delay := s.backoff.Next(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// TaskResults fetches the results produced by a job
func (s *Service) TaskResults(ctx context.Context, taskID string) ([]types.ScrapedResult, error) {
	var page types.Page[types.ScrapedResult]
	if err := s.client.GetJSON(ctx, tasksPath+url.PathEscape(taskID)+"/results/", nil, &page); err != nil {
		return nil, fmt.Errorf("failed to get task results: %w", err)
	}
	return page.Results, nil
}

// List returns one page of stored results
func (s *Service) List(ctx context.Context, f Filters) (*types.Page[types.ScrapedResult], error) {
	var page types.Page[types.ScrapedResult]
	if err := s.client.GetJSON(ctx, resultsPath, f.Query(), &page); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return &page, nil
}

// ListAll follows pagination until every page is read or maxPages is hit
func (s *Service) ListAll(ctx context.Context, f Filters, maxPages int) ([]types.ScrapedResult, error) {
	page, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	all := page.Results
	for n := 1; page.HasNext() && (maxPages <= 0 || n < maxPages); n++ {
		next := page.Next
		page = &types.Page[types.ScrapedResult]{}
		if err := s.client.GetJSON(ctx, next, nil, page); err != nil {
			return all, fmt.Errorf("failed to list results: %w", err)
		}
		all = append(all, page.Results...)
	}
	return all, nil
}

// Get fetches one stored result
func (s *Service) Get(ctx context.Context, id int64) (*types.ScrapedResult, error) {
	var r types.ScrapedResult
	if err := s.client.GetJSON(ctx, resultPath(id), nil, &r); err != nil {
		return nil, fmt.Errorf("failed to get result %d: %w", id, err)
	}
	return &r, nil
}

// GetMany fetches several results concurrently. Results come back in
// the order of ids; failures are reported per id.
func (s *Service) GetMany(ctx context.Context, ids []int64) ([]types.ScrapedResult, *types.BulkResult) {
	found := make(map[int64]types.ScrapedResult, len(ids))
	var mu sync.Mutex
	bulk := types.RunBulk(ctx, ids, types.DefaultBulkConcurrency, func(ctx context.Context, id int64) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		mu.Lock()
		found[id] = *r
		mu.Unlock()
		return nil
	})

	out := make([]types.ScrapedResult, 0, len(found))
	for _, id := range ids {
		if r, ok := found[id]; ok {
			out = append(out, r)
		}
	}
	return out, bulk
}

// RawHTML returns the stored page source without decoding it
func (s *Service) RawHTML(ctx context.Context, id int64) (string, error) {
	html, err := s.client.GetText(ctx, resultPath(id)+"raw_html/", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get raw HTML for %d: %w", id, err)
	}
	return html, nil
}

// Download asks the backend to export the given results
func (s *Service) Download(ctx context.Context, format DownloadFormat, ids []int64) (*customhttp.Blob, error) {
	var path string
	switch format {
	case DownloadCSV:
		path = resultsPath + "download_csv/"
	case DownloadJSON:
		path = resultsPath + "download_json/"
	default:
		return nil, types.NewValidationError("format", "download format must be csv or json, got %q", format)
	}

	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", strconv.FormatInt(id, 10))
	}
	blob, err := s.client.GetBlob(ctx, path, q)
	if err != nil {
		return nil, fmt.Errorf("failed to download results: %w", err)
	}
	if blob.Filename == "" {
		blob.Filename = "scraped_data." + string(format)
	}
	return blob, nil
}

// BulkDelete removes results in one request
func (s *Service) BulkDelete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return types.NewValidationError("ids", "no results selected")
	}
	body := map[string][]int64{"ids": ids}
	if err := s.client.PostJSON(ctx, bulkDeletePath, body, nil); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	return nil
}

// Delete removes one result
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.client.Delete(ctx, resultPath(id)); err != nil {
		return fmt.Errorf("failed to delete result %d: %w", id, err)
	}
	return nil
}

// DeleteEach removes results with one request per id and reports
// partial success. Callers should re-list afterwards.
func (s *Service) DeleteEach(ctx context.Context, ids []int64) *types.BulkResult {
	return types.RunBulk(ctx, ids, types.DefaultBulkConcurrency, s.Delete)
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *types.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

func resultPath(id int64) string {
	return resultsPath + strconv.FormatInt(id, 10) + "/"
}
