// Package proxy manages the backend's scraping proxies and offers local
// helpers to rank, format, import and probe them.
package proxy

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const proxiesPath = "/proxies/"

var (
	ipPattern       = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	hostnamePattern = regexp.MustCompile(`^(([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]*[a-zA-Z0-9])\.)*([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9\-]*[A-Za-z0-9])$`)
)

// Filters narrow a proxy listing
type Filters struct {
	Active    *bool
	ProxyType types.ProxyType
	Country   string
	Page      int
}

// Query encodes the filters as request parameters
func (f Filters) Query() url.Values {
	q := url.Values{}
	if f.Active != nil {
		q.Set("is_active", strconv.FormatBool(*f.Active))
	}
	if f.ProxyType != "" {
		q.Set("proxy_type", string(f.ProxyType))
	}
	if f.Country != "" {
		q.Set("country", f.Country)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	return q
}

// Manager wraps the proxy endpoints
type Manager struct {
	client *customhttp.Client
	logger *zap.Logger
}

// NewManager creates a new proxy manager
func NewManager(client *customhttp.Client, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{client: client, logger: logger}
}

// List returns one page of proxies
func (m *Manager) List(ctx context.Context, f Filters) (*types.Page[types.Proxy], error) {
	var page types.Page[types.Proxy]
	if err := m.client.GetJSON(ctx, proxiesPath, f.Query(), &page); err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}
	return &page, nil
}

// Get fetches one proxy
func (m *Manager) Get(ctx context.Context, id int64) (*types.Proxy, error) {
	var p types.Proxy
	if err := m.client.GetJSON(ctx, path(id), nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get proxy %d: %w", id, err)
	}
	return &p, nil
}

// Create validates p and stores it
func (m *Manager) Create(ctx context.Context, p types.Proxy) (*types.Proxy, error) {
	Normalize(&p)
	if err := Validate(p); err != nil {
		return nil, err
	}

	var created types.Proxy
	if err := m.client.PostJSON(ctx, proxiesPath, p, &created); err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}
	m.logger.Info("proxy created", zap.Int64("id", created.ID), zap.String("proxy", FormatURL(created, true)))
	return &created, nil
}

// Update validates p and replaces proxy id
func (m *Manager) Update(ctx context.Context, id int64, p types.Proxy) (*types.Proxy, error) {
	Normalize(&p)
	if err := Validate(p); err != nil {
		return nil, err
	}

	p.ID = id
	var updated types.Proxy
	if err := m.client.PutJSON(ctx, path(id), p, &updated); err != nil {
		return nil, fmt.Errorf("failed to update proxy %d: %w", id, err)
	}
	return &updated, nil
}

// Delete removes one proxy
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.client.Delete(ctx, path(id)); err != nil {
		return fmt.Errorf("failed to delete proxy %d: %w", id, err)
	}
	return nil
}

// DeleteEach removes proxies one request at a time and reports partial
// success
func (m *Manager) DeleteEach(ctx context.Context, ids []int64) *types.BulkResult {
	return types.RunBulk(ctx, ids, types.DefaultBulkConcurrency, m.Delete)
}

// TestConnection asks the backend to check the proxy
func (m *Manager) TestConnection(ctx context.Context, id int64) (*types.ProxyTestResult, error) {
	var res types.ProxyTestResult
	if err := m.client.PostJSON(ctx, path(id)+"test_connection/", nil, &res); err != nil {
		return nil, fmt.Errorf("failed to test proxy %d: %w", id, err)
	}
	m.logger.Debug("proxy tested", zap.Int64("id", id), zap.Bool("success", res.Success))
	return &res, nil
}

// Normalize trims the address and lowercases the type, defaulting to http
func Normalize(p *types.Proxy) {
	p.Address = strings.TrimSpace(p.Address)
	p.Username = strings.TrimSpace(p.Username)
	p.ProxyType = types.ProxyType(strings.ToLower(strings.TrimSpace(string(p.ProxyType))))
	if p.ProxyType == "" {
		p.ProxyType = types.ProxyHTTP
	}
}

// Validate checks address, port and type
func Validate(p types.Proxy) error {
	addr := strings.TrimSpace(p.Address)
	if addr == "" {
		return types.NewValidationError("address", "address is required")
	}
	if ipPattern.MatchString(addr) {
		for _, part := range strings.Split(addr, ".") {
			if n, _ := strconv.Atoi(part); n > 255 {
				return types.NewValidationError("address", "invalid IP address %q", addr)
			}
		}
	} else if !hostnamePattern.MatchString(addr) {
		return types.NewValidationError("address", "invalid proxy address format %q", addr)
	}
	if p.Port < 1 || p.Port > 65535 {
		return types.NewValidationError("port", "port must be between 1 and 65535")
	}
	if !p.ProxyType.Valid() {
		return types.NewValidationError("proxy_type", "proxy type must be one of: http, https, socks4, socks5")
	}
	if (p.Username == "") != (p.Password == "") {
		return types.NewValidationError("password", "username and password must be given together")
	}
	return nil
}

// SuccessRate returns the reported success rate, or derives it as a
// percentage from the success and failure counts
func SuccessRate(p types.Proxy) float64 {
	if p.SuccessRate != nil {
		return *p.SuccessRate
	}
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	rate := float64(p.SuccessCount) / float64(total) * 100
	return float64(int(rate*10+0.5)) / 10
}

// Best returns the active proxy with the highest score. The score
// favours success rate and breaks ties on response time.
func Best(proxies []types.Proxy) (*types.Proxy, error) {
	var best *types.Proxy
	var bestScore float64

	for i := range proxies {
		p := &proxies[i]
		if !p.IsActive {
			continue
		}

		score := SuccessRate(*p)*1000 + float64(p.SuccessCount)/float64(p.FailureCount+1)
		if p.AverageResponseTime != nil && *p.AverageResponseTime > 0 {
			score -= *p.AverageResponseTime
		}
		if best == nil || score > bestScore {
			best = p
			bestScore = score
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no working proxies available")
	}
	return best, nil
}

// FormatURL renders the proxy as type://[user[:pass]@]address:port.
// With mask set the password is replaced by asterisks.
func FormatURL(p types.Proxy, mask bool) string {
	var b strings.Builder
	b.WriteString(string(p.ProxyType))
	b.WriteString("://")
	switch {
	case p.Username != "" && p.Password != "":
		if mask {
			b.WriteString(url.User(p.Username).String() + ":******@")
		} else {
			b.WriteString(url.UserPassword(p.Username, p.Password).String() + "@")
		}
	case p.Username != "":
		b.WriteString(url.User(p.Username).String() + "@")
	}
	fmt.Fprintf(&b, "%s:%d", p.Address, p.Port)
	return b.String()
}

func path(id int64) string {
	return proxiesPath + strconv.FormatInt(id, 10) + "/"
}
