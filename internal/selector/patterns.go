package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// minRepeats is how many siblings must share a tag and class before the
// group counts as a repeating pattern
const minRepeats = 3

type groupKey struct {
	tag   string
	class string
}

// DetectLocal finds repeating sibling structures in rawHTML: elements
// that share a parent, a tag and a class. Tables and lists are reported
// under their own type. This is the offline counterpart of
// Service.DetectPatterns and is used when the backend cannot be reached.
func DetectLocal(rawHTML string) ([]types.DetectedPattern, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	counts := make(map[groupKey]int)
	doc.Find("*").Each(func(_ int, parent *goquery.Selection) {
		local := make(map[groupKey]int)
		parent.Children().Each(func(_ int, child *goquery.Selection) {
			node := child.Get(0)
			if node.Type != html.ElementNode {
				return
			}
			class := strings.Fields(child.AttrOr("class", ""))
			if len(class) == 0 {
				return
			}
			local[groupKey{tag: node.Data, class: class[0]}]++
		})
		for k, n := range local {
			if n >= minRepeats && n > counts[k] {
				counts[k] = n
			}
		}
	})

	var patterns []types.DetectedPattern
	if n := doc.Find("table").Length(); n > 0 {
		patterns = append(patterns, types.DetectedPattern{
			Type:        "table",
			Count:       n,
			Description: fmt.Sprintf("%d table(s)", n),
		})
	}
	if n := doc.Find("ul > li, ol > li").Length(); n >= minRepeats {
		patterns = append(patterns, types.DetectedPattern{
			Type:        "list",
			Count:       n,
			Description: fmt.Sprintf("%d list items", n),
		})
	}
	for k, n := range counts {
		patterns = append(patterns, types.DetectedPattern{
			Type:        k.tag + "." + k.class,
			Count:       n,
			Description: fmt.Sprintf("%d repeated <%s class=%q> elements", n, k.tag, k.class),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Type < patterns[j].Type
	})
	return patterns, nil
}
