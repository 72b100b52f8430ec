package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

func newService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := customhttp.NewClient(customhttp.Options{BaseURL: srv.URL + "/api", Session: customhttp.Session{Token: "t0k"}})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	fast := customhttp.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
	return NewService(client, fast, nil)
}

func TestSubmitValidationMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	for _, raw := range []string{"", "not a url", "ftp://example.com/file"} {
		_, err := svc.Submit(context.Background(), types.ScrapeJobConfig{URL: raw})
		var ve *types.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Expected ValidationError for %q, got %v", raw, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("Expected no network calls, got %d", calls.Load())
	}
}

func TestSubmitPostsWirePayload(t *testing.T) {
	var payload map[string]any
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scraped-data/scrape_now/" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Token t0k" {
			t.Errorf("Missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"task_id":"task-1","status":"pending","message":"Scraping started"}`)
	}))

	cfg := types.ScrapeJobConfig{
		URL:              "https://example.com",
		ExtractionMethod: types.ExtractionCustom,
		CustomSelectors: []types.SelectorRow{
			{FieldName: "title", SelectorType: types.SelectorCSS, Selector: ".title"},
		},
	}
	cfg.AdvancedOptions.RetryAttempts = 15

	info, err := svc.Submit(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.ID != "task-1" || info.Status != types.TaskPending {
		t.Errorf("Unexpected task %+v", info)
	}
	if payload["max_retries"] != float64(10) {
		t.Errorf("Expected clamped max_retries 10, got %v", payload["max_retries"])
	}
	if payload["extraction_method"] != "custom" || payload["use_selenium"] != true {
		t.Errorf("Unexpected payload %v", payload)
	}
}

func TestWaitPollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/task-9/" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		n := polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case n == 2:
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"detail":"busy"}`)
		case n < 4:
			fmt.Fprint(w, `{"task_id":"task-9","status":"started"}`)
		default:
			fmt.Fprint(w, `{"task_id":"task-9","status":"SUCCESS","result_ids":[3,4]}`)
		}
	}))

	var seen []types.TaskStatus
	info, err := svc.Wait(context.Background(), "task-9", func(ti types.TaskInfo) {
		seen = append(seen, ti.Status)
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Status != types.TaskCompleted || len(info.ResultIDs) != 2 {
		t.Errorf("Unexpected final info %+v", info)
	}
	if len(seen) != 2 || seen[0] != types.TaskProcessing || seen[1] != types.TaskCompleted {
		t.Errorf("Expected processing then completed updates, got %v", seen)
	}
}

func TestWaitStopsOnPermanentError(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"Not found."}`)
	}))

	_, err := svc.Wait(context.Background(), "missing", nil)
	if !IsNotFound(err) {
		t.Fatalf("Expected 404 error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Not found.") {
		t.Errorf("Expected backend message, got %v", err)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"task_id":"t","status":"processing"}`)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := svc.Wait(ctx, "t", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestListSendsFilters(t *testing.T) {
	var query string
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count":1,"next":null,"previous":null,"results":[{"id":1,"url":"https://a.com","content":{"k":"v"},"timestamp":"2024-01-02T03:04:05Z"}]}`)
	}))

	f := Filters{
		Keywords:  "shoes",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Page:      2,
	}
	page, err := svc.List(context.Background(), f)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if page.Count != 1 || page.Results[0].URL != "https://a.com" {
		t.Errorf("Unexpected page %+v", page)
	}
	for _, want := range []string{"keywords=shoes", "start_date=2024-01-01", "page=2"} {
		if !strings.Contains(query, want) {
			t.Errorf("Expected %q in query %q", want, query)
		}
	}
	if strings.Contains(query, "url=") {
		t.Errorf("Empty filters must not be sent: %q", query)
	}
}

func TestListAllFollowsNext(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scraped-data/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"count":2,"next":null,"results":[{"id":2}]}`)
			return
		}
		fmt.Fprintf(w, `{"count":2,"next":"%s/api/scraped-data/?page=2","results":[{"id":1}]}`, srvURL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	client, _ := customhttp.NewClient(customhttp.Options{BaseURL: srv.URL + "/api"})
	svc := NewService(client, customhttp.DefaultBackoffConfig(), nil)

	all, err := svc.ListAll(context.Background(), Filters{}, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(all) != 2 || all[1].ID != 2 {
		t.Errorf("Expected both pages, got %+v", all)
	}
}

func TestRawHTMLAndDownload(t *testing.T) {
	var downloadQuery string
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/scraped-data/5/raw_html/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body>{"not":"json"}</body></html>`)
		case "/api/scraped-data/download_csv/":
			downloadQuery = r.URL.RawQuery
			w.Header().Set("Content-Type", "text/csv")
			fmt.Fprint(w, "id,url\n1,https://a.com\n")
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	html, err := svc.RawHTML(ctx, 5)
	if err != nil || !strings.HasPrefix(html, "<html>") {
		t.Errorf("Unexpected raw html %q err=%v", html, err)
	}

	blob, err := svc.Download(ctx, DownloadCSV, []int64{1, 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if downloadQuery != "ids=1&ids=2" {
		t.Errorf("Expected repeated ids, got %q", downloadQuery)
	}
	if blob.Filename != "scraped_data.csv" || !strings.HasPrefix(string(blob.Data), "id,url") {
		t.Errorf("Unexpected blob %+v", blob)
	}

	if _, err := svc.Download(ctx, "xml", nil); err == nil {
		t.Error("Expected error for unsupported download format")
	}
}

func TestBulkDeleteAndDeleteEach(t *testing.T) {
	var mu sync.Mutex
	var bulkBody map[string][]int64
	var deleted []string
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/scraped-data/bulk_delete/":
			_ = json.NewDecoder(r.Body).Decode(&bulkBody)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/scraped-data/3/":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"detail":"Not found."}`)
		case r.Method == http.MethodDelete:
			mu.Lock()
			deleted = append(deleted, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	ctx := context.Background()

	if err := svc.BulkDelete(ctx, []int64{1, 2}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(bulkBody["ids"]) != 2 {
		t.Errorf("Unexpected bulk body %v", bulkBody)
	}
	if err := svc.BulkDelete(ctx, nil); err == nil {
		t.Error("Expected validation error for empty selection")
	}

	result := svc.DeleteEach(ctx, []int64{1, 2, 3})
	if len(result.Succeeded) != 2 || len(result.Failed) != 1 {
		t.Errorf("Expected 2 ok / 1 failed, got %+v", result)
	}
	if !IsNotFound(result.Failed[3]) {
		t.Errorf("Expected 404 for id 3, got %v", result.Failed[3])
	}
}
