package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProxyType is the protocol a backend proxy speaks
type ProxyType string

const (
	ProxyHTTP   ProxyType = "http"
	ProxyHTTPS  ProxyType = "https"
	ProxySOCKS4 ProxyType = "socks4"
	ProxySOCKS5 ProxyType = "socks5"
)

// Valid reports whether t is a known proxy type
func (t ProxyType) Valid() bool {
	switch t {
	case ProxyHTTP, ProxyHTTPS, ProxySOCKS4, ProxySOCKS5:
		return true
	}
	return false
}

// Proxy is a backend-owned proxy record
type Proxy struct {
	ID                  int64      `json:"id,omitempty" yaml:"id,omitempty"`
	Address             string     `json:"address" yaml:"address"`
	Port                FlexInt    `json:"port" yaml:"port"`
	ProxyType           ProxyType  `json:"proxy_type" yaml:"proxy_type"`
	Username            string     `json:"username,omitempty" yaml:"username,omitempty"`
	Password            string     `json:"password,omitempty" yaml:"password,omitempty"`
	IsActive            bool       `json:"is_active" yaml:"is_active"`
	SuccessRate         *float64   `json:"success_rate,omitempty" yaml:"success_rate,omitempty"`
	SuccessCount        int        `json:"success_count,omitempty" yaml:"-"`
	FailureCount        int        `json:"failure_count,omitempty" yaml:"-"`
	AverageResponseTime *float64   `json:"average_response_time,omitempty" yaml:"-"`
	Country             string     `json:"country,omitempty" yaml:"country,omitempty"`
	City                string     `json:"city,omitempty" yaml:"city,omitempty"`
	LastUsed            *time.Time `json:"last_used,omitempty" yaml:"-"`
	FormattedProxy      string     `json:"formatted_proxy,omitempty" yaml:"-"`
}

// ProxyTestResult is the outcome of a backend connectivity test
type ProxyTestResult struct {
	Success      bool    `json:"success"`
	Status       string  `json:"status,omitempty"`
	Message      string  `json:"message,omitempty"`
	ResponseTime float64 `json:"response_time,omitempty"`
	IP           string  `json:"ip,omitempty"`
}

// Frequency is how often a schedule runs
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	}
	return false
}

// Weekday is a lowercase day name used by weekly schedules
type Weekday string

// Weekdays lists the accepted day names in calendar order
var Weekdays = []Weekday{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// ParseWeekday accepts full names and three-letter abbreviations
func ParseWeekday(s string) (Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Weekdays {
		if s == string(d) || (len(s) == 3 && strings.HasPrefix(string(d), s)) {
			return d, true
		}
	}
	return "", false
}

// Schedule is a persisted recurring job configuration
type Schedule struct {
	ID                 int64             `json:"id,omitempty" yaml:"id,omitempty"`
	Name               string            `json:"name" yaml:"name"`
	URL                string            `json:"url" yaml:"url"`
	Keywords           string            `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	DataType           DataType          `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Frequency          Frequency         `json:"frequency" yaml:"frequency"`
	CronExpression     string            `json:"cron_expression,omitempty" yaml:"cron_expression,omitempty"`
	Time               string            `json:"time,omitempty" yaml:"time,omitempty"`
	DaysOfWeek         []Weekday         `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`
	DayOfMonth         *FlexInt          `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`
	UseSelenium        bool              `json:"use_selenium" yaml:"use_selenium"`
	NotifyOnCompletion bool              `json:"notify_on_completion" yaml:"notify_on_completion"`
	NotificationEmail  string            `json:"notification_email,omitempty" yaml:"notification_email,omitempty"`
	TimeoutSec         FlexInt           `json:"timeout" yaml:"timeout"`
	MaxDepth           FlexInt           `json:"max_depth" yaml:"max_depth"`
	FollowLinks        bool              `json:"follow_links" yaml:"follow_links"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
	ProxyID            *int64            `json:"proxy_id,omitempty" yaml:"proxy_id,omitempty"`
	IsActive           bool              `json:"is_active" yaml:"is_active"`
	LastRun            *time.Time        `json:"last_run,omitempty" yaml:"-"`
	NextRun            *time.Time        `json:"next_run,omitempty" yaml:"-"`
	NextRunDisplay     string            `json:"next_run_display,omitempty" yaml:"-"`
	LastRunDisplay     string            `json:"last_run_display,omitempty" yaml:"-"`
}

// ContentKind tags a result's content for specialised rendering
type ContentKind string

const (
	ContentProduct ContentKind = "product"
	ContentReview  ContentKind = "review"
	ContentGeneric ContentKind = "generic"
)

// ScrapedResult is a stored scrape output. Content stays raw JSON so
// arbitrary backend payloads survive untouched.
type ScrapedResult struct {
	ID             int64           `json:"id"`
	URL            string          `json:"url"`
	Keywords       string          `json:"keywords,omitempty"`
	DataType       string          `json:"data_type,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	ContentPreview string          `json:"content_preview,omitempty"`
	RawHTML        string          `json:"raw_html,omitempty"`
	Status         string          `json:"status,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	ProcessingTime *float64        `json:"processing_time,omitempty"`
	SeleniumUsed   bool            `json:"selenium_used,omitempty"`
}

// Kind picks the specialised view for the content
func (r *ScrapedResult) Kind() ContentKind {
	switch strings.ToLower(r.DataType) {
	case "product":
		return ContentProduct
	case "review":
		return ContentReview
	}
	return ContentGeneric
}

// DecodeContent decodes Content into a generic JSON value
func (r *ScrapedResult) DecodeContent() (any, error) {
	if len(bytes.TrimSpace(r.Content)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Content))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode content of result %d: %w", r.ID, err)
	}
	return v, nil
}

// Summary renders a one-line description of the content
func (r *ScrapedResult) Summary() string {
	v, err := r.DecodeContent()
	if err != nil || v == nil {
		return r.ContentPreview
	}
	obj, _ := v.(map[string]any)

	switch r.Kind() {
	case ContentProduct:
		title, _ := obj["title"].(string)
		price := fmt.Sprint(valueOr(obj["price"], ""))
		switch {
		case title != "" && price != "":
			return title + " - " + price
		case title != "":
			return title
		}
	case ContentReview:
		reviews, _ := obj["reviews"].([]any)
		product, _ := obj["product"].(map[string]any)
		name, _ := product["name"].(string)
		if name != "" {
			return fmt.Sprintf("%s - %d reviews", name, len(reviews))
		}
		return fmt.Sprintf("%d reviews", len(reviews))
	}

	b, err := MarshalNoEscape(v)
	if err != nil {
		return r.ContentPreview
	}
	if runes := []rune(string(b)); len(runes) > 100 {
		return string(runes[:97]) + "..."
	}
	return string(b)
}

func valueOr(v any, fallback any) any {
	if v == nil {
		return fallback
	}
	return v
}

// TaskStatus is the lifecycle state of a submitted job
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// ParseTaskStatus maps backend and worker state names onto the job lifecycle
func ParseTaskStatus(s string) TaskStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing", "started", "running", "retry", "progress":
		return TaskProcessing
	case "completed", "complete", "success", "done", "finished":
		return TaskCompleted
	case "failed", "failure", "error", "revoked":
		return TaskFailed
	}
	return TaskPending
}

// Terminal reports whether no further transitions will happen
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// UnmarshalJSON normalises the backend's status word
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode task status: %w", err)
	}
	*s = ParseTaskStatus(raw)
	return nil
}

// TaskInfo is the backend's view of a submitted job
type TaskInfo struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Message   string     `json:"message,omitempty"`
	URL       string     `json:"url,omitempty"`
	ResultIDs []int64    `json:"result_ids,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// UnmarshalJSON accepts the id under "id" or "task_id", as string or number
func (t *TaskInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		TaskID    json.RawMessage `json:"task_id"`
		Status    TaskStatus      `json:"status"`
		Message   string          `json:"message"`
		URL       string          `json:"url"`
		ResultIDs []int64         `json:"result_ids"`
		ResultID  *int64          `json:"result_id"`
		Error     string          `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode task: %w", err)
	}

	id := idString(raw.TaskID)
	if id == "" {
		id = idString(raw.ID)
	}

	*t = TaskInfo{
		ID:        id,
		Status:    raw.Status,
		Message:   raw.Message,
		URL:       raw.URL,
		ResultIDs: raw.ResultIDs,
		Error:     raw.Error,
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if raw.ResultID != nil {
		t.ResultIDs = append(t.ResultIDs, *raw.ResultID)
	}
	return nil
}

func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strconv.Quote(string(raw))
}

// SelectorTestResult is the backend's answer to a selector test
type SelectorTestResult struct {
	Success bool   `json:"success"`
	Preview any    `json:"preview,omitempty"`
	Count   int    `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PatternAnalysis is the backend's answer to a page analysis
type PatternAnalysis struct {
	Patterns []DetectedPattern `json:"patterns"`
}

// Page is one page of a list endpoint. It decodes both the paginated
// envelope and a bare JSON array.
type Page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
	Results  []T    `json:"results"`
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to decode list: %w", err)
		}
		*p = Page[T]{Count: len(items), Results: items}
		return nil
	}

	var env struct {
		Count    int     `json:"count"`
		Next     *string `json:"next"`
		Previous *string `json:"previous"`
		Results  []T     `json:"results"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode page: %w", err)
	}
	*p = Page[T]{Count: env.Count, Results: env.Results}
	if env.Next != nil {
		p.Next = *env.Next
	}
	if env.Previous != nil {
		p.Previous = *env.Previous
	}
	return nil
}

// HasNext reports whether another page follows
func (p *Page[T]) HasNext() bool {
	return p.Next != ""
}
