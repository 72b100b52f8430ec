// Package selector tests custom field selectors and detects repeating
// page patterns, both through the backend and locally against HTML.
package selector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const (
	testSelectorPath = "/scraped-data/test_selector/"
	analyzePagePath  = "/scraped-data/analyze_page/"
)

// Service calls the backend's selector endpoints
type Service struct {
	client *customhttp.Client
	logger *zap.Logger
}

// NewService creates a new selector service
func NewService(client *customhttp.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

type testRequest struct {
	URL          string             `json:"url"`
	SelectorType types.SelectorType `json:"selector_type"`
	Selector     string             `json:"selector"`
}

// Test asks the backend to evaluate selector against the live page at
// pageURL. Malformed input is rejected locally before any request.
func (s *Service) Test(ctx context.Context, pageURL string, typ types.SelectorType, selector string) (*types.SelectorTestResult, error) {
	if err := jobconfig.ValidateURL("url", pageURL); err != nil {
		return nil, err
	}
	if err := ValidateSyntax(typ, selector); err != nil {
		return nil, err
	}

	req := testRequest{URL: strings.TrimSpace(pageURL), SelectorType: typ, Selector: strings.TrimSpace(selector)}
	var res types.SelectorTestResult
	if err := s.client.PostJSON(ctx, testSelectorPath, req, &res); err != nil {
		return nil, fmt.Errorf("failed to test selector: %w", err)
	}
	s.logger.Debug("selector tested",
		zap.String("selector", req.Selector),
		zap.Bool("success", res.Success),
	)
	return &res, nil
}

// DetectPatterns asks the backend to analyse pageURL for repeating
// structures. A failure leaves pattern extraction unavailable but is
// otherwise harmless to the caller.
func (s *Service) DetectPatterns(ctx context.Context, pageURL string) ([]types.DetectedPattern, error) {
	if err := jobconfig.ValidateURL("url", pageURL); err != nil {
		return nil, err
	}

	var res types.PatternAnalysis
	body := map[string]string{"url": strings.TrimSpace(pageURL)}
	if err := s.client.PostJSON(ctx, analyzePagePath, body, &res); err != nil {
		return nil, fmt.Errorf("failed to detect patterns: %w", err)
	}
	return res.Patterns, nil
}

// SelectPatterns marks the patterns whose type is listed as selected and
// clears the rest. It returns the number of patterns selected.
func SelectPatterns(patterns []types.DetectedPattern, selected ...string) int {
	want := make(map[string]bool, len(selected))
	for _, t := range selected {
		want[strings.TrimSpace(t)] = true
	}

	n := 0
	for i := range patterns {
		patterns[i].Selected = want[patterns[i].Type]
		if patterns[i].Selected {
			n++
		}
	}
	return n
}
