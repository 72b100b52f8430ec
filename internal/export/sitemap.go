package export

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// SitemapConfig holds sitemap options
type SitemapConfig struct {
	Changefreq      string
	DefaultPriority float64
	// Lastmod is written for every entry when non-zero
	Lastmod time.Time
}

// DefaultSitemapConfig returns weekly entries with priority 0.8
func DefaultSitemapConfig() SitemapConfig {
	return SitemapConfig{Changefreq: "weekly", DefaultPriority: 0.8}
}

// URLSet represents the XML sitemap structure
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL represents a single URL in the sitemap
type URL struct {
	Loc        string  `xml:"loc"`
	Lastmod    string  `xml:"lastmod,omitempty"`
	Changefreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// ExportSitemap writes the absolute http(s) URLs among urls as an XML
// sitemap named filename in the output directory. Duplicates and other
// strings are dropped. It returns the path written and the entry count.
func (e *Exporter) ExportSitemap(urls []string, filename string, cfg SitemapConfig) (string, int, error) {
	seen := make(map[string]bool, len(urls))
	var locs []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !seen[raw] {
			seen[raw] = true
			locs = append(locs, raw)
		}
	}
	sort.Strings(locs)

	urlSet := URLSet{XMLNS: sitemapNS, URLs: make([]URL, 0, len(locs))}
	for _, loc := range locs {
		entry := URL{Loc: loc, Changefreq: cfg.Changefreq, Priority: cfg.DefaultPriority}
		if !cfg.Lastmod.IsZero() {
			entry.Lastmod = cfg.Lastmod.UTC().Format("2006-01-02")
		}
		urlSet.URLs = append(urlSet.URLs, entry)
	}

	output, err := xml.MarshalIndent(urlSet, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal XML: %w", err)
	}

	if filename == "" {
		filename = "sitemap"
	}
	target := e.target(types.FormatXML, filename)
	if err := writeAtomic(target, []byte(xml.Header+string(output))); err != nil {
		return "", 0, fmt.Errorf("failed to write sitemap: %w", err)
	}
	return target, len(urlSet.URLs), nil
}
