package renderer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNeedsRendering(t *testing.T) {
	static := "<html><body>" + strings.Repeat("Static content with lots of text ", 30) + "</body></html>"

	tests := []struct {
		name string
		html string
		want bool
	}{
		{"short page", "<html><script>console.log('x')</script></html>", true},
		{"static page", static, false},
		{"react root", static + `<div data-reactroot></div>`, true},
		{"next data", static + `<script id="__NEXT_DATA__">{}</script>`, true},
		{"noscript notice", static + `<noscript>You need to enable JavaScript to run this app.</noscript>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRendering(tt.html); got != tt.want {
				t.Errorf("NeedsRendering() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewChromeRendererDefaults(t *testing.T) {
	r, err := NewChromeRenderer(context.Background(), Options{Settle: -1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer r.Close()

	if r.opts.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout, got %v", r.opts.Timeout)
	}
	if r.opts.Settle != 0 {
		t.Errorf("Expected negative settle to clamp to 0, got %v", r.opts.Settle)
	}
}

func TestRenderCancelledContext(t *testing.T) {
	r, err := NewChromeRenderer(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fails before or during browser start, with or without Chrome installed.
	if _, err := r.Render(ctx, "about:blank"); err == nil {
		t.Skip("render succeeded despite cancellation")
	} else if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "failed to render page") {
		t.Errorf("Unexpected error: %v", err)
	}
}
