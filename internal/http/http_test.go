package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, session Session) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL + "/api/", Session: session})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "localhost:8000", "ftp://x/api"} {
		if _, err := NewClient(Options{BaseURL: base}); err == nil {
			t.Errorf("Expected error for base URL %q", base)
		}
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}, Session{})

	ctx := context.Background()
	if err := c.Delete(ctx, "/proxies/1/"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := c.WithSession(Session{Token: "abc"}).Delete(ctx, "/proxies/1/"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := c.WithSession(Session{Token: "xyz", Scheme: "Bearer"}).Delete(ctx, "/proxies/1/"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"", "Token abc", "Bearer xyz"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Request %d: expected Authorization %q, got %q", i, want[i], got[i])
		}
	}
}

func TestPathJoiningAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}, Session{})

	var out []any
	q := url.Values{"ids": {"1", "2"}}
	if err := c.GetJSON(context.Background(), "scraped-data/", q, &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotPath != "/api/scraped-data/" {
		t.Errorf("Expected /api/scraped-data/, got %s", gotPath)
	}
	if gotQuery != "ids=1&ids=2" {
		t.Errorf("Expected repeated ids, got %s", gotQuery)
	}
}

func TestAPIErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ctype  string
		body   string
		want   string
	}{
		{"error field", 400, "application/json", `{"error":"URL is required"}`, "URL is required"},
		{"detail field", 401, "application/json", `{"detail":"Invalid token."}`, "Invalid token."},
		{"message field", 500, "application/json", `{"message":"boom","detail":"ignored"}`, "boom"},
		{"field errors", 400, "application/json", `{"port":["Port must be between 1 and 65535"],"address":["Invalid proxy address format"]}`, "address: Invalid proxy address format; port: Port must be between 1 and 65535"},
		{"html body", 502, "text/html", `<html>Bad gateway</html>`, "HTTP error 502"},
		{"empty body", 404, "", ``, "HTTP error 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.ctype != "" {
					w.Header().Set("Content-Type", tt.ctype)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, Session{})

			err := c.GetJSON(context.Background(), "/x/", nil, nil)
			var apiErr *types.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if apiErr.Error() != tt.want {
				t.Errorf("Expected message %q, got %q", tt.want, apiErr.Error())
			}
		})
	}
}

func TestTimeoutSurfacesNetworkError(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Session{})
	defer close(release)

	_, err := c.Do(context.Background(), http.MethodGet, "/slow/", nil, WithTimeout(50*time.Millisecond))
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	var netErr *types.NetworkError
	if !errors.As(err, &netErr) || !netErr.Timeout {
		t.Errorf("Expected NetworkError with Timeout set, got %v", err)
	}
}

func TestCancelledContextIsNotTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, Session{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Do(ctx, http.MethodGet, "/slow/", nil)
	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if errors.Is(err, types.ErrTimeout) {
		t.Error("Cancellation must not be reported as timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}

func TestResponseValueAndBlob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/json/":
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			fmt.Fprint(w, `{"n":1}`)
		case "/api/html/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<p>hi</p>`)
		case "/api/csv/":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="scraped.csv"`)
			fmt.Fprint(w, "a,b\n1,2\n")
		}
	}, Session{})
	ctx := context.Background()

	resp, err := c.Do(ctx, http.MethodGet, "/json/", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	v, err := resp.Value()
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	if _, ok := v.(map[string]any); !ok {
		t.Errorf("Expected decoded object, got %T", v)
	}

	text, err := c.GetText(ctx, "/html/", nil)
	if err != nil || text != "<p>hi</p>" {
		t.Errorf("Unexpected text %q err=%v", text, err)
	}

	blob, err := c.GetBlob(ctx, "/csv/", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if blob.Filename != "scraped.csv" || !strings.HasPrefix(string(blob.Data), "a,b") {
		t.Errorf("Unexpected blob: %+v", blob)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Second, Max: 4 * time.Second, Factor: 2})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := b.Next(i); got != w {
			t.Errorf("Next(%d): expected %v, got %v", i, w, got)
		}
	}

	jittered := NewBackoff(DefaultBackoffConfig())
	for i := 0; i < 20; i++ {
		d := jittered.Next(i)
		if d <= 0 || d > 30*time.Second {
			t.Errorf("Next(%d) out of range: %v", i, d)
		}
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&types.NetworkError{Timeout: true}, true},
		{&types.APIError{StatusCode: 503}, true},
		{&types.APIError{StatusCode: 429}, true},
		{&types.APIError{StatusCode: 404}, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := Transient(tt.err); got != tt.want {
			t.Errorf("Transient(%v): expected %v, got %v", tt.err, tt.want, got)
		}
	}
}

func TestResolveUserAgent(t *testing.T) {
	ua, tlsName := ResolveUserAgent("chrome_windows")
	if !strings.Contains(ua, "Chrome/131") {
		t.Errorf("Unexpected UA %q", ua)
	}
	if tlsName != "Chrome_131" {
		t.Errorf("Expected Chrome_131 fingerprint, got %q", tlsName)
	}

	if ua, tlsName := ResolveUserAgent("default"); ua != "" || tlsName != "" {
		t.Errorf("Expected default to resolve to nothing, got %q %q", ua, tlsName)
	}

	custom := "MyBot/1.0 (+https://example.com/bot)"
	if ua, tlsName := ResolveUserAgent(custom); ua != custom || tlsName != "" {
		t.Errorf("Expected custom UA passthrough, got %q %q", ua, tlsName)
	}

	names := PresetNames()
	if names[0] != DefaultUserAgent || len(names) < 9 {
		t.Errorf("Unexpected preset names %v", names)
	}
}

func TestApplyHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	ApplyHeaders(req, "edge_windows")
	if !strings.Contains(req.Header.Get("User-Agent"), "Edg/") {
		t.Errorf("Expected Edge UA, got %q", req.Header.Get("User-Agent"))
	}
	if req.Header.Get("Sec-Ch-Ua-Platform") != `"Windows"` {
		t.Errorf("Expected platform hint")
	}

	req = httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	ApplyHeaders(req, "MyBot/1.0")
	if req.Header.Get("User-Agent") != "MyBot/1.0" || req.Header.Get("Accept-Language") != "" {
		t.Errorf("Expected bare custom UA, got %v", req.Header)
	}
}
