package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

func TestEnumValidation(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"data type auto", DataTypeAuto.Valid()},
		{"data type tables", DataTypeTables.Valid()},
		{"method both", ScrapeMethodBoth.Valid()},
		{"extraction custom", ExtractionCustom.Valid()},
		{"selector jsonpath", SelectorJSONPath.Valid()},
		{"format text", FormatText.Valid()},
		{"structure flat", StructureFlat.Valid()},
		{"proxy socks5", ProxySOCKS5.Valid()},
		{"frequency custom", FrequencyCustom.Valid()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.valid {
				t.Errorf("Expected %s to be valid", tt.name)
			}
		})
	}

	if DataType("product").Valid() {
		t.Error("Expected unknown data type to be invalid")
	}
	if ProxyType("ftp").Valid() {
		t.Error("Expected unknown proxy type to be invalid")
	}
	if !ScrapeMethodSelenium.UsesBrowser() || ScrapeMethodBeautifulSoup.UsesBrowser() {
		t.Error("UsesBrowser mismatch")
	}
}

func TestFlexIntJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    FlexInt
		wantErr bool
	}{
		{`15`, 15, false},
		{`"15"`, 15, false},
		{`" 7 "`, 7, false},
		{`15.9`, 15, false},
		{`"-3"`, -3, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f FlexInt
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if f != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, f)
			}
		})
	}
}

func TestFlexIntYAML(t *testing.T) {
	var opts AdvancedOptions
	doc := "timeoutMs: \"45000\"\nretryAttempts: 15\nconcurrency: 2.0\n"
	if err := yaml.Unmarshal([]byte(doc), &opts); err != nil {
		t.Fatalf("Failed to decode yaml: %v", err)
	}
	if opts.TimeoutMs != 45000 || opts.RetryAttempts != 15 || opts.Concurrency != 2 {
		t.Errorf("Unexpected options: %+v", opts)
	}
}

func TestRowPreservesOrder(t *testing.T) {
	input := `{"zeta":1,"alpha":"<b>","mid":{"x":true}}`

	var r Row
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Failed to decode row: %v", err)
	}

	keys := r.Keys()
	if strings.Join(keys, ",") != "zeta,alpha,mid" {
		t.Errorf("Expected insertion order, got %v", keys)
	}

	v, _ := r.Get("zeta")
	if n, ok := v.(json.Number); !ok || n.String() != "1" {
		t.Errorf("Expected json.Number 1, got %#v", v)
	}

	out, err := json.Marshal(&r)
	if err != nil {
		t.Fatalf("Failed to encode row: %v", err)
	}
	if !strings.HasPrefix(string(out), `{"zeta":1,"alpha":`) {
		t.Errorf("Unexpected encoding: %s", out)
	}
}

func TestRowSetKeepsFirstPosition(t *testing.T) {
	r := NewRow()
	r.Set("a", 1)
	r.Set("b", 2)
	r.Set("a", 3)

	if got := strings.Join(r.Keys(), ","); got != "a,b" {
		t.Errorf("Expected a,b got %s", got)
	}
	if v, _ := r.Get("a"); v != 3 {
		t.Errorf("Expected overwritten value 3, got %v", v)
	}

	c := r.Clone()
	c.Set("c", 4)
	if r.Len() != 2 {
		t.Errorf("Clone mutated original")
	}
}

func TestDecodeRowsRejectsNonObjects(t *testing.T) {
	if _, err := DecodeRows([]byte(`[1,2]`)); err == nil {
		t.Error("Expected error for non-object rows")
	}
	rows, err := DecodeRows([]byte(`[{"a":1},{"b":2}]`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(rows))
	}
}

func TestPageDecodesEnvelopeAndArray(t *testing.T) {
	var env Page[Proxy]
	body := `{"count":3,"next":"http://x/api/proxies/?page=2","previous":null,"results":[{"id":1,"address":"10.0.0.1","port":"8080","proxy_type":"http","is_active":true}]}`
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if env.Count != 3 || !env.HasNext() || env.Previous != "" {
		t.Errorf("Unexpected page metadata: %+v", env)
	}
	if len(env.Results) != 1 || env.Results[0].Port != 8080 {
		t.Errorf("Unexpected results: %+v", env.Results)
	}

	var arr Page[Proxy]
	if err := json.Unmarshal([]byte(`[{"id":1},{"id":2}]`), &arr); err != nil {
		t.Fatalf("Failed to decode array: %v", err)
	}
	if arr.Count != 2 || arr.HasNext() {
		t.Errorf("Unexpected array page: %+v", arr)
	}
}

func TestTaskInfoDecoding(t *testing.T) {
	tests := []struct {
		body   string
		id     string
		status TaskStatus
	}{
		{`{"task_id":"abc-123","status":"queued"}`, "abc-123", TaskPending},
		{`{"id":42,"status":"SUCCESS","result_id":7}`, "42", TaskCompleted},
		{`{"id":"x","status":"started"}`, "x", TaskProcessing},
		{`{"id":"y","status":"FAILURE"}`, "y", TaskFailed},
		{`{"task_id":"z"}`, "z", TaskPending},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var info TaskInfo
			if err := json.Unmarshal([]byte(tt.body), &info); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if info.ID != tt.id {
				t.Errorf("Expected id %s, got %s", tt.id, info.ID)
			}
			if info.Status != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, info.Status)
			}
		})
	}

	if !TaskCompleted.Terminal() || !TaskFailed.Terminal() || TaskProcessing.Terminal() {
		t.Error("Terminal mismatch")
	}
}

func TestScrapedResultSummary(t *testing.T) {
	tests := []struct {
		name   string
		result ScrapedResult
		want   string
	}{
		{
			name:   "product",
			result: ScrapedResult{DataType: "product", Content: json.RawMessage(`{"title":"Lamp","price":"$10"}`)},
			want:   "Lamp - $10",
		},
		{
			name:   "review",
			result: ScrapedResult{DataType: "review", Content: json.RawMessage(`{"product":{"name":"Lamp"},"reviews":[1,2]}`)},
			want:   "Lamp - 2 reviews",
		},
		{
			name:   "generic",
			result: ScrapedResult{DataType: "general", Content: json.RawMessage(`{"a":"<b>"}`)},
			want:   `{"a":"<b>"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Summary(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScrapedResultSummaryKeepsRunesWhole(t *testing.T) {
	content, _ := json.Marshal(map[string]string{"t": strings.Repeat("é", 120)})
	got := (&ScrapedResult{DataType: "general", Content: content}).Summary()

	if !utf8.ValidString(got) {
		t.Fatalf("Expected valid UTF-8, got %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 100 || !strings.HasSuffix(got, "...") {
		t.Errorf("Expected 100 runes ending in ..., got %d: %q", n, got)
	}
}

func TestSelectorRowComplete(t *testing.T) {
	tests := []struct {
		row  SelectorRow
		want bool
	}{
		{SelectorRow{FieldName: "title", Selector: ".title"}, true},
		{SelectorRow{FieldName: "  ", Selector: ".title"}, false},
		{SelectorRow{FieldName: "title", Selector: "\t"}, false},
	}
	for _, tt := range tests {
		if got := tt.row.Complete(); got != tt.want {
			t.Errorf("Complete(%+v): expected %v, got %v", tt.row, tt.want, got)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	if d, ok := ParseWeekday("Mon"); !ok || d != "monday" {
		t.Errorf("Expected monday, got %q", d)
	}
	if _, ok := ParseWeekday("funday"); ok {
		t.Error("Expected funday to be rejected")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	netErr := &NetworkError{Op: "GET", URL: "http://x", Timeout: true, Err: errors.New("deadline")}
	wrapped := fmt.Errorf("failed to list: %w", netErr)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("Expected timeout to match ErrTimeout")
	}

	var ne *NetworkError
	if !errors.As(wrapped, &ne) {
		t.Error("Expected errors.As to find NetworkError")
	}

	plain := &NetworkError{Op: "GET", URL: "http://x", Err: errors.New("refused")}
	if errors.Is(plain, ErrTimeout) {
		t.Error("Non-timeout must not match ErrTimeout")
	}

	if msg := (&APIError{StatusCode: 502}).Error(); msg != "HTTP error 502" {
		t.Errorf("Unexpected generic message %q", msg)
	}
	if msg := (&APIError{StatusCode: 400, Message: "Invalid URL format"}).Error(); msg != "Invalid URL format" {
		t.Errorf("Expected verbatim message, got %q", msg)
	}
}

func TestBulkResult(t *testing.T) {
	b := NewBulkResult()
	b.Succeeded = append(b.Succeeded, 1, 2)
	if b.Err() != nil {
		t.Error("Expected nil error when all succeed")
	}

	b.Failed[3] = errors.New("not found")
	if b.Total() != 3 || b.OK() {
		t.Errorf("Unexpected totals: %d ok=%v", b.Total(), b.OK())
	}
	if err := b.Err(); err == nil || !strings.Contains(err.Error(), "1 of 3 failed") {
		t.Errorf("Unexpected summary: %v", err)
	}
}

func TestRunBulkPartialFailure(t *testing.T) {
	ids := []int64{5, 1, 4, 2, 3}
	result := RunBulk(context.Background(), ids, 2, func(ctx context.Context, id int64) error {
		if id%2 == 0 {
			return fmt.Errorf("cannot delete %d", id)
		}
		return nil
	})

	if result.Total() != 5 {
		t.Fatalf("Expected 5 attempts, got %d", result.Total())
	}
	if len(result.Succeeded) != 3 || result.Succeeded[0] != 1 || result.Succeeded[2] != 5 {
		t.Errorf("Unexpected successes %v", result.Succeeded)
	}
	if len(result.Failed) != 2 || result.Failed[2] == nil || result.Failed[4] == nil {
		t.Errorf("Unexpected failures %v", result.Failed)
	}
}

func TestRunBulkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := 0
	result := RunBulk(ctx, []int64{1, 2}, 1, func(ctx context.Context, id int64) error {
		called++
		return nil
	})
	if called != 0 {
		t.Errorf("Expected no calls after cancellation, got %d", called)
	}
	if !errors.Is(result.Failed[1], context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", result.Failed[1])
	}
}

func TestRunBulkDuplicateIDs(t *testing.T) {
	calls := map[int64]int{}
	var mu sync.Mutex
	result := RunBulk(context.Background(), []int64{5, 5, 7}, 1, func(ctx context.Context, id int64) error {
		mu.Lock()
		defer mu.Unlock()
		calls[id]++
		if id == 5 && calls[id] > 1 {
			return errors.New("404 not found")
		}
		return nil
	})

	if calls[5] != 1 || calls[7] != 1 {
		t.Errorf("Expected one call per distinct id, got %v", calls)
	}
	if result.Total() != 2 {
		t.Errorf("Expected 2 items, got %d", result.Total())
	}
	if !result.OK() || fmt.Sprint(result.Succeeded) != "[5 7]" {
		t.Errorf("Unexpected result succeeded=%v failed=%v", result.Succeeded, result.Failed)
	}
}

func TestForEachLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	seen := make([]bool, 20)

	ForEachLimit(len(seen), 3, func(i int) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		seen[i] = true
		mu.Unlock()
	})

	if peak > 3 {
		t.Errorf("Expected at most 3 calls in flight, got %d", peak)
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("Expected index %d to run", i)
		}
	}

	ForEachLimit(0, 2, func(int) { t.Error("Expected no calls for n=0") })
}

func TestUniqueIDs(t *testing.T) {
	got := UniqueIDs([]int64{3, 1, 3, 2, 1})
	if fmt.Sprint(got) != "[3 1 2]" {
		t.Errorf("Expected [3 1 2], got %v", got)
	}
}
