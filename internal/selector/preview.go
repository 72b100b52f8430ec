package selector

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/ohler55/ojg/oj"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// maxPreviewMatches caps the values returned by a local preview
const maxPreviewMatches = 20

// Preview is the result of evaluating a selector against local HTML
type Preview struct {
	Count  int
	Values []string
}

// PreviewHTML evaluates a CSS or XPath selector against rawHTML, for
// offline testing against stored or locally rendered pages
func PreviewHTML(rawHTML string, typ types.SelectorType, selector string) (*Preview, error) {
	if err := ValidateSyntax(typ, selector); err != nil {
		return nil, err
	}

	switch typ {
	case types.SelectorXPath:
		doc, err := htmlquery.Parse(strings.NewReader(rawHTML))
		if err != nil {
			return nil, err
		}
		nodes, err := htmlquery.QueryAll(doc, selector)
		if err != nil {
			return nil, types.NewValidationError("selector", "invalid XPath %q: %v", selector, err)
		}
		p := &Preview{Count: len(nodes)}
		for _, n := range nodes {
			if len(p.Values) == maxPreviewMatches {
				break
			}
			p.Values = append(p.Values, collapse(htmlquery.InnerText(n)))
		}
		return p, nil

	case types.SelectorJSONPath:
		return nil, types.NewValidationError("selectorType", "JSONPath selectors apply to result content, not HTML")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	matches := doc.Find(selector)
	p := &Preview{Count: matches.Length()}
	matches.EachWithBreak(func(i int, s *goquery.Selection) bool {
		p.Values = append(p.Values, collapse(s.Text()))
		return len(p.Values) < maxPreviewMatches
	})
	return p, nil
}

// PreviewJSON evaluates a JSONPath selector against a JSON document such
// as the content of a stored result
func PreviewJSON(content []byte, selector string) (*Preview, error) {
	x, err := CompileJSONPath(selector)
	if err != nil {
		return nil, err
	}
	doc, err := oj.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON content: %w", err)
	}

	matches := x.Get(doc)
	p := &Preview{Count: len(matches)}
	for _, m := range matches {
		if len(p.Values) == maxPreviewMatches {
			break
		}
		if str, ok := m.(string); ok {
			p.Values = append(p.Values, collapse(str))
			continue
		}
		p.Values = append(p.Values, oj.JSON(m, &oj.Options{Sort: true}))
	}
	return p, nil
}

// PageSummary describes a fetched page
type PageSummary struct {
	Title    string
	MetaTags map[string]string
	Links    []string
	Images   []string
	JSONLD   []string
}

// Summarize extracts the title, meta tags, links, images and JSON-LD
// blocks of rawHTML, resolving relative URLs against baseURL
func Summarize(rawHTML, baseURL string) (*PageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	s := &PageSummary{
		Title:    collapse(doc.Find("title").First().Text()),
		MetaTags: make(map[string]string),
	}

	doc.Find("meta[content]").Each(func(_ int, m *goquery.Selection) {
		content, _ := m.Attr("content")
		if name, ok := m.Attr("name"); ok {
			s.MetaTags[name] = content
		}
		if prop, ok := m.Attr("property"); ok {
			s.MetaTags[prop] = content
		}
	})

	seen := make(map[string]bool)
	doc.Find("a[href], link[rel='canonical'], link[rel='alternate']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if link := normalizeURL(href, baseURL); link != "" && !seen[link] {
			seen[link] = true
			s.Links = append(s.Links, link)
		}
	})

	seenImg := make(map[string]bool)
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if u := normalizeURL(src, baseURL); u != "" && !seenImg[u] {
			seenImg[u] = true
			s.Images = append(s.Images, u)
		}
	})

	doc.Find("script[type='application/ld+json']").Each(func(_ int, js *goquery.Selection) {
		if text := strings.TrimSpace(js.Text()); text != "" {
			s.JSONLD = append(s.JSONLD, text)
		}
	})

	sort.Strings(s.Links)
	sort.Strings(s.Images)
	return s, nil
}

var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"fbclid", "gclid", "msclkid", "mc_cid", "mc_eid",
}

// normalizeURL resolves href against baseURL, dropping fragments,
// tracking parameters and non-navigational schemes
func normalizeURL(href, baseURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	if resolved.RawQuery != "" {
		q := resolved.Query()
		for _, p := range trackingParams {
			q.Del(p)
		}
		resolved.RawQuery = q.Encode()
	}
	return resolved.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
