package types

import "strings"

// DataType selects what the backend extracts from a page
type DataType string

const (
	DataTypeAuto       DataType = "auto"
	DataTypeFullPage   DataType = "full_page"
	DataTypeStructured DataType = "structured"
	DataTypeTextOnly   DataType = "text_only"
	DataTypeLinks      DataType = "links"
	DataTypeImages     DataType = "images"
	DataTypeTables     DataType = "tables"
	DataTypeCustom     DataType = "custom"
)

// Valid reports whether d is a known data type
func (d DataType) Valid() bool {
	switch d {
	case DataTypeAuto, DataTypeFullPage, DataTypeStructured, DataTypeTextOnly,
		DataTypeLinks, DataTypeImages, DataTypeTables, DataTypeCustom:
		return true
	}
	return false
}

// ScrapeMethod selects the backend fetch engine
type ScrapeMethod string

const (
	ScrapeMethodSelenium      ScrapeMethod = "selenium"
	ScrapeMethodBeautifulSoup ScrapeMethod = "beautifulsoup"
	ScrapeMethodBoth          ScrapeMethod = "both"
)

// Valid reports whether m is a known scrape method
func (m ScrapeMethod) Valid() bool {
	switch m {
	case ScrapeMethodSelenium, ScrapeMethodBeautifulSoup, ScrapeMethodBoth:
		return true
	}
	return false
}

// UsesBrowser reports whether the method needs a real browser on the backend
func (m ScrapeMethod) UsesBrowser() bool {
	return m == ScrapeMethodSelenium || m == ScrapeMethodBoth
}

// ExtractionMethod is the strategy for locating data on a page
type ExtractionMethod string

const (
	ExtractionAuto    ExtractionMethod = "auto"
	ExtractionPattern ExtractionMethod = "pattern"
	ExtractionCustom  ExtractionMethod = "custom"
)

// Valid reports whether m is a known extraction method
func (m ExtractionMethod) Valid() bool {
	switch m {
	case ExtractionAuto, ExtractionPattern, ExtractionCustom:
		return true
	}
	return false
}

// SelectorType is the expression language of a custom selector
type SelectorType string

const (
	SelectorCSS      SelectorType = "css"
	SelectorXPath    SelectorType = "xpath"
	SelectorJSONPath SelectorType = "jsonpath"
)

// Valid reports whether t is a known selector type
func (t SelectorType) Valid() bool {
	switch t {
	case SelectorCSS, SelectorXPath, SelectorJSONPath:
		return true
	}
	return false
}

// OutputFormat is the format the backend stores results in
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
	FormatXML  OutputFormat = "xml"
	FormatText OutputFormat = "text"
)

// Valid reports whether f is a known output format
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatJSON, FormatCSV, FormatXML, FormatText:
		return true
	}
	return false
}

// OutputStructure controls nesting of stored results
type OutputStructure string

const (
	StructureNested OutputStructure = "nested"
	StructureFlat   OutputStructure = "flat"
)

// Valid reports whether s is a known output structure
func (s OutputStructure) Valid() bool {
	return s == StructureNested || s == StructureFlat
}

// ScrapeJobConfig is the full set of parameters describing one scrape request
type ScrapeJobConfig struct {
	URL              string            `json:"url" yaml:"url"`
	Keywords         string            `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	DataType         DataType          `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	ScrapeMethod     ScrapeMethod      `json:"scrapeMethod,omitempty" yaml:"scrapeMethod,omitempty"`
	ExtractionMethod ExtractionMethod  `json:"extractionMethod,omitempty" yaml:"extractionMethod,omitempty"`
	CustomSelectors  []SelectorRow     `json:"customSelectors,omitempty" yaml:"customSelectors,omitempty"`
	DetectedPatterns []DetectedPattern `json:"detectedPatterns,omitempty" yaml:"detectedPatterns,omitempty"`
	CustomHeaders    map[string]string `json:"customHeaders,omitempty" yaml:"customHeaders,omitempty"`
	AdvancedOptions  AdvancedOptions   `json:"advancedOptions" yaml:"advancedOptions"`
	ProxySettings    ProxySettings     `json:"proxySettings" yaml:"proxySettings"`
	OutputOptions    OutputOptions     `json:"outputOptions" yaml:"outputOptions"`
}

// SelectorRow is one user-defined field extraction rule.
// Valid is only set after a successful test call.
type SelectorRow struct {
	ID           string       `json:"id,omitempty" yaml:"id,omitempty"`
	FieldName    string       `json:"fieldName" yaml:"fieldName"`
	SelectorType SelectorType `json:"selectorType" yaml:"selectorType"`
	Selector     string       `json:"selector" yaml:"selector"`
	Valid        bool         `json:"valid" yaml:"valid"`
}

// Complete reports whether the row has both a field name and a selector
func (r SelectorRow) Complete() bool {
	return strings.TrimSpace(r.FieldName) != "" && strings.TrimSpace(r.Selector) != ""
}

// DetectedPattern is a repeating structure found by page analysis
type DetectedPattern struct {
	Type        string `json:"type" yaml:"type"`
	Count       int    `json:"count" yaml:"count"`
	Description string `json:"description" yaml:"description"`
	Selected    bool   `json:"selected" yaml:"selected"`
}

// AdvancedOptions holds network behaviour instructions for the backend
type AdvancedOptions struct {
	RequestIntervalMs FlexInt `json:"requestIntervalMs" yaml:"requestIntervalMs"`
	TimeoutMs         FlexInt `json:"timeoutMs" yaml:"timeoutMs"`
	// UserAgent is a preset name or a literal user agent string
	UserAgent         string  `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	RetryAttempts     FlexInt `json:"retryAttempts" yaml:"retryAttempts"`
	Concurrency       FlexInt `json:"concurrency" yaml:"concurrency"`
	JavascriptEnabled *bool   `json:"javascriptEnabled,omitempty" yaml:"javascriptEnabled,omitempty"`
	FollowRedirects   *bool   `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
}

// ProxySettings selects a backend proxy for the job
type ProxySettings struct {
	UseProxy            bool    `json:"useProxy" yaml:"useProxy"`
	ProxyID             *int64  `json:"proxyId,omitempty" yaml:"proxyId,omitempty"`
	RotateIP            bool    `json:"rotateIp" yaml:"rotateIp"`
	RotationIntervalMin FlexInt `json:"rotationIntervalMin" yaml:"rotationIntervalMin"`
}

// OutputOptions controls how the backend shapes stored results
type OutputOptions struct {
	Format           OutputFormat    `json:"format,omitempty" yaml:"format,omitempty"`
	Structure        OutputStructure `json:"structure,omitempty" yaml:"structure,omitempty"`
	CleanData        bool            `json:"cleanData" yaml:"cleanData"`
	ConvertNumbers   bool            `json:"convertNumbers" yaml:"convertNumbers"`
	ParseDates       bool            `json:"parseDates" yaml:"parseDates"`
	FollowPagination bool            `json:"followPagination" yaml:"followPagination"`
	MaxPages         FlexInt         `json:"maxPages" yaml:"maxPages"`
}

// SelectorSpec is the wire form of a custom selector
type SelectorSpec struct {
	Type     SelectorType `json:"type"`
	Selector string       `json:"selector"`
}

// Submission is the flat wire payload posted to start a scrape
type Submission struct {
	URL              string                  `json:"url"`
	Keywords         string                  `json:"keywords"`
	DataType         DataType                `json:"data_type"`
	ScrapeMethod     ScrapeMethod            `json:"scrape_method"`
	UseSelenium      bool                    `json:"use_selenium"`
	ExtractionMethod ExtractionMethod        `json:"extraction_method"`
	Selectors        map[string]SelectorSpec `json:"selectors,omitempty"`
	Patterns         []string                `json:"patterns,omitempty"`
	CustomHeaders    map[string]string       `json:"custom_headers,omitempty"`

	RequestIntervalMs int    `json:"request_interval_ms"`
	Timeout           int    `json:"timeout"`
	TimeoutMs         int    `json:"timeout_ms"`
	UserAgent         string `json:"user_agent,omitempty"`
	TLSFingerprint    string `json:"tls_fingerprint,omitempty"`
	MaxRetries        int    `json:"max_retries"`
	Concurrency       int    `json:"concurrency"`
	JavascriptEnabled bool   `json:"javascript_enabled"`
	FollowRedirects   bool   `json:"follow_redirects"`

	ProxyID             *int64 `json:"proxy_id,omitempty"`
	RotateIP            bool   `json:"rotate_ip,omitempty"`
	RotationIntervalMin int    `json:"rotation_interval_min,omitempty"`

	OutputFormat     OutputFormat    `json:"output_format"`
	OutputStructure  OutputStructure `json:"output_structure"`
	CleanData        bool            `json:"clean_data"`
	ConvertNumbers   bool            `json:"convert_numbers"`
	ParseDates       bool            `json:"parse_dates"`
	FollowPagination bool            `json:"follow_pagination"`
	MaxPages         int             `json:"max_pages"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences p, using fallback when p is nil
func BoolValue(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}
