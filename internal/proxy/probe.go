package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// DefaultProbeURL echoes the caller's IP as {"origin": "..."}
const DefaultProbeURL = "https://httpbin.org/ip"

// Probe checks a proxy from this machine by fetching checkURL through
// it. It complements TestConnection, which tests from the backend.
// socks4 proxies cannot be probed locally.
func Probe(ctx context.Context, p types.Proxy, checkURL string, timeout time.Duration) (*types.ProxyTestResult, error) {
	if p.ProxyType == types.ProxySOCKS4 {
		return nil, types.NewValidationError("proxy_type", "socks4 proxies can only be tested by the backend")
	}
	if checkURL == "" {
		checkURL = DefaultProbeURL
	}

	proxyParsed, err := url.Parse(FormatURL(p, false))
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
	}
	// net/http dials https proxies over TLS and socks5 natively.
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyParsed),
		},
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &types.ProxyTestResult{
			Success: false,
			Status:  "failed",
			Message: err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	elapsed := time.Since(start)

	res := &types.ProxyTestResult{
		Success:      resp.StatusCode == http.StatusOK,
		Status:       strings.ToLower(http.StatusText(resp.StatusCode)),
		ResponseTime: elapsed.Seconds(),
	}
	if !res.Success {
		res.Message = fmt.Sprintf("probe returned status %d", resp.StatusCode)
		return res, nil
	}

	var ipResponse struct {
		Origin string `json:"origin"`
	}
	if err := json.Unmarshal(body, &ipResponse); err == nil {
		res.IP = ipResponse.Origin
	}
	res.Message = "proxy is working"
	return res, nil
}
