package selector

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"github.com/ohler55/ojg/jp"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// ValidateSyntax checks that selector is well formed for typ without
// touching the network
func ValidateSyntax(typ types.SelectorType, selector string) error {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return types.NewValidationError("selector", "selector is required")
	}

	switch typ {
	case types.SelectorCSS, "":
		if _, err := cascadia.Compile(selector); err != nil {
			return types.NewValidationError("selector", "invalid CSS selector %q: %v", selector, err)
		}
	case types.SelectorXPath:
		if _, err := xpath.Compile(selector); err != nil {
			return types.NewValidationError("selector", "invalid XPath %q: %v", selector, err)
		}
	case types.SelectorJSONPath:
		if _, err := CompileJSONPath(selector); err != nil {
			return err
		}
	default:
		return types.NewValidationError("selectorType", "unknown selector type %q", typ)
	}
	return nil
}

// CompileJSONPath parses a JSONPath expression rooted at $ or @
func CompileJSONPath(expr string) (jp.Expr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || (expr[0] != '$' && expr[0] != '@') {
		return nil, types.NewValidationError("selector", "JSONPath %q must start with $ or @", expr)
	}
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, types.NewValidationError("selector", "invalid JSONPath %q: %v", expr, err)
	}
	return x, nil
}
