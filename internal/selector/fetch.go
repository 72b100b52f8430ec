package selector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
)

// maxPageBytes bounds a page fetched for local previews
const maxPageBytes = 10 << 20

// FetchHTML downloads pageURL with the browser headers of the given user
// agent preset so selectors can be previewed locally. Pages that need
// scripts to build their DOM should go through the renderer instead.
func FetchHTML(ctx context.Context, hc *http.Client, pageURL, userAgent string) (string, error) {
	if err := jobconfig.ValidateURL("url", pageURL); err != nil {
		return "", err
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	customhttp.ApplyHeaders(req, userAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", pageURL, err)
	}
	return string(body), nil
}
