package jobconfig

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
)

// robotsAgent is matched against robots.txt groups when the job uses a
// preset or default user agent
const robotsAgent = "scrapedeck"

// RobotsVerdict is the outcome of a robots.txt pre-check
type RobotsVerdict struct {
	RobotsURL string
	Allowed   bool
	// Status is the HTTP status robots.txt was served with, 0 if unreachable
	Status int
}

// CheckRobots fetches the target site's robots.txt and reports whether
// target may be fetched. The check is advisory: an unreachable
// robots.txt counts as allowed and the backend still does the scraping.
func CheckRobots(ctx context.Context, hc *http.Client, target, userAgent string) (RobotsVerdict, error) {
	if err := ValidateURL("url", target); err != nil {
		return RobotsVerdict{}, err
	}
	u, _ := url.Parse(target)
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	verdict := RobotsVerdict{RobotsURL: robotsURL, Allowed: true}

	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return verdict, fmt.Errorf("failed to create robots request: %w", err)
	}
	customhttp.ApplyHeaders(req, userAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return verdict, nil
	}
	defer resp.Body.Close()
	verdict.Status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return verdict, nil
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return verdict, nil
	}

	agent := robotsAgent
	if ua, _ := customhttp.ResolveUserAgent(userAgent); ua != "" {
		if _, preset := customhttp.Preset(userAgent); !preset {
			agent = ua
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	verdict.Allowed = robots.TestAgent(path, agent)
	return verdict, nil
}
