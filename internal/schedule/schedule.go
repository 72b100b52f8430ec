// Package schedule manages recurring scrape schedules on the backend.
// Every operation is a single request; activation and run-now take
// effect on the backend and show up on the next listing.
package schedule

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const schedulesPath = "/schedules/"

// Filters narrow a schedule listing
type Filters struct {
	Active    *bool
	Frequency types.Frequency
	Search    string
	Page      int
}

// Query encodes the filters as request parameters
func (f Filters) Query() url.Values {
	q := url.Values{}
	if f.Active != nil {
		q.Set("is_active", strconv.FormatBool(*f.Active))
	}
	if f.Frequency != "" {
		q.Set("frequency", string(f.Frequency))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	return q
}

// RunResult is the backend's reply to a run-now request
type RunResult struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// Service wraps the schedule endpoints
type Service struct {
	client *customhttp.Client
	logger *zap.Logger
}

// NewService creates a new schedule service
func NewService(client *customhttp.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// List returns one page of schedules
func (s *Service) List(ctx context.Context, f Filters) (*types.Page[types.Schedule], error) {
	var page types.Page[types.Schedule]
	if err := s.client.GetJSON(ctx, schedulesPath, f.Query(), &page); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return &page, nil
}

// Get fetches one schedule
func (s *Service) Get(ctx context.Context, id int64) (*types.Schedule, error) {
	var sc types.Schedule
	if err := s.client.GetJSON(ctx, path(id), nil, &sc); err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", id, err)
	}
	return &sc, nil
}

// Create normalises and validates sc, then stores it
func (s *Service) Create(ctx context.Context, sc types.Schedule) (*types.Schedule, error) {
	Normalize(&sc)
	if err := Validate(sc); err != nil {
		return nil, err
	}

	var created types.Schedule
	if err := s.client.PostJSON(ctx, schedulesPath, sc, &created); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	s.logger.Info("schedule created", zap.Int64("id", created.ID), zap.String("name", created.Name))
	return &created, nil
}

// Update normalises and validates sc, then replaces schedule id
func (s *Service) Update(ctx context.Context, id int64, sc types.Schedule) (*types.Schedule, error) {
	Normalize(&sc)
	if err := Validate(sc); err != nil {
		return nil, err
	}

	sc.ID = id
	var updated types.Schedule
	if err := s.client.PutJSON(ctx, path(id), sc, &updated); err != nil {
		return nil, fmt.Errorf("failed to update schedule %d: %w", id, err)
	}
	return &updated, nil
}

// Delete removes one schedule
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.client.Delete(ctx, path(id)); err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, err)
	}
	return nil
}

// DeleteEach removes schedules one request at a time and reports
// partial success
func (s *Service) DeleteEach(ctx context.Context, ids []int64) *types.BulkResult {
	return types.RunBulk(ctx, ids, types.DefaultBulkConcurrency, s.Delete)
}

// RunNow triggers an immediate run
func (s *Service) RunNow(ctx context.Context, id int64) (*RunResult, error) {
	var res RunResult
	if err := s.client.PostJSON(ctx, path(id)+"run_now/", nil, &res); err != nil {
		return nil, fmt.Errorf("failed to run schedule %d: %w", id, err)
	}
	s.logger.Info("schedule run requested", zap.Int64("id", id), zap.String("task_id", res.TaskID))
	return &res, nil
}

// ToggleActive sets the activation state of a schedule
func (s *Service) ToggleActive(ctx context.Context, id int64, active bool) error {
	body := map[string]bool{"is_active": active}
	if err := s.client.PostJSON(ctx, path(id)+"toggle_active/", body, nil); err != nil {
		return fmt.Errorf("failed to toggle schedule %d: %w", id, err)
	}
	return nil
}

func path(id int64) string {
	return schedulesPath + strconv.FormatInt(id, 10) + "/"
}
