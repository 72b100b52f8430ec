package http

import (
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// BackoffConfig holds polling interval configuration
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Jitter is the +/- fraction applied to each interval
	Jitter float64
}

// DefaultBackoffConfig returns the default status polling intervals
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 2 * time.Second,
		Max:     30 * time.Second,
		Factor:  1.5,
		Jitter:  0.2,
	}
}

// Backoff computes growing intervals between status polls
type Backoff struct {
	config BackoffConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBackoff creates a new backoff calculator
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Initial <= 0 {
		config.Initial = DefaultBackoffConfig().Initial
	}
	if config.Max < config.Initial {
		config.Max = config.Initial
	}
	if config.Factor < 1 {
		config.Factor = 1
	}
	return &Backoff{
		config: config,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the interval to wait before poll number attempt (0-based)
func (b *Backoff) Next(attempt int) time.Duration {
	d := b.config.Initial
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.config.Factor)
		if d >= b.config.Max {
			d = b.config.Max
			break
		}
	}

	if b.config.Jitter > 0 {
		b.mu.Lock()
		spread := 2.0*b.rnd.Float64() - 1.0
		b.mu.Unlock()
		d += time.Duration(float64(d) * b.config.Jitter * spread)
	}
	if d > b.config.Max {
		d = b.config.Max
	}
	return d
}

// Transient reports whether a failed status poll is worth repeating.
// Submissions are never repeated; this only governs read-only polling.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var netErr *types.NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *types.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
