package results

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".webp": true, ".svg": true,
}

// Links holds the distinct URLs and image URLs found in a value
type Links struct {
	URLs   []string `json:"urls"`
	Images []string `json:"images"`
}

// FindURLsAndImages walks every string leaf of v. Absolute http(s) URLs
// whose path ends in an image extension are images, other absolute
// http(s) URLs are links, anything else is ignored. Both slices are
// sorted and free of duplicates.
func FindURLsAndImages(v any) Links {
	urls := make(map[string]bool)
	images := make(map[string]bool)
	collectLinks(v, urls, images)
	return Links{URLs: sortedKeys(urls), Images: sortedKeys(images)}
}

func collectLinks(v any, urls, images map[string]bool) {
	switch x := v.(type) {
	case string:
		classifyLink(x, urls, images)
	case *types.Row:
		for _, k := range x.Keys() {
			child, _ := x.Get(k)
			collectLinks(child, urls, images)
		}
	case map[string]any:
		for _, child := range x {
			collectLinks(child, urls, images)
		}
	case []any:
		for _, child := range x {
			collectLinks(child, urls, images)
		}
	}
}

func classifyLink(s string, urls, images map[string]bool) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return
	}
	if imageExtensions[strings.ToLower(path.Ext(u.Path))] {
		images[s] = true
		return
	}
	urls[s] = true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
