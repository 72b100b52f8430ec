package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "scrapedeck.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrapedeck.db")

	first, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := first.SaveConfig(context.Background(), "keep", types.ScrapeJobConfig{URL: "https://example.com"}); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	first.Close()

	// Reopening must not re-run migrations or lose data
	second, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer second.Close()

	if _, err := second.LoadConfig(context.Background(), "keep"); err != nil {
		t.Errorf("Expected saved config after reopen, got %v", err)
	}
}

func TestConfigLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	cfg := types.ScrapeJobConfig{
		URL:      "https://shop.example.com",
		DataType: types.DataTypeCustom,
		CustomSelectors: []types.SelectorRow{
			{FieldName: "price", SelectorType: types.SelectorCSS, Selector: ".price"},
		},
		CustomHeaders: map[string]string{"X-Token": "abc"},
	}
	cfg.AdvancedOptions.TimeoutMs = 5000

	if err := store.SaveConfig(ctx, " products ", cfg); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	saved, err := store.LoadConfig(ctx, "products")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if saved.Config.URL != cfg.URL || saved.Config.AdvancedOptions.TimeoutMs != 5000 {
		t.Errorf("Unexpected config %+v", saved.Config)
	}
	if len(saved.Config.CustomSelectors) != 1 || saved.Config.CustomSelectors[0].Selector != ".price" {
		t.Errorf("Expected selectors to survive, got %+v", saved.Config.CustomSelectors)
	}
	if saved.Config.CustomHeaders["X-Token"] != "abc" {
		t.Errorf("Expected headers to survive, got %v", saved.Config.CustomHeaders)
	}

	cfg.URL = "https://shop.example.com/v2"
	if err := store.SaveConfig(ctx, "products", cfg); err != nil {
		t.Fatalf("Failed to overwrite config: %v", err)
	}
	if err := store.SaveConfig(ctx, "articles", types.ScrapeJobConfig{URL: "https://news.example.com"}); err != nil {
		t.Fatalf("Failed to save second config: %v", err)
	}

	list, err := store.ListConfigs(ctx)
	if err != nil {
		t.Fatalf("Failed to list configs: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 configs, got %d", len(list))
	}
	if list[0].Name != "articles" || list[1].Name != "products" {
		t.Errorf("Expected configs sorted by name, got %+v", list)
	}
	if list[1].URL != "https://shop.example.com/v2" {
		t.Errorf("Expected overwritten URL, got %q", list[1].URL)
	}

	if err := store.DeleteConfig(ctx, "products"); err != nil {
		t.Fatalf("Failed to delete config: %v", err)
	}
	if _, err := store.LoadConfig(ctx, "products"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteConfig(ctx, "products"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSaveConfigRequiresName(t *testing.T) {
	store := openStore(t)

	err := store.SaveConfig(context.Background(), "  ", types.ScrapeJobConfig{URL: "https://example.com"})
	var ve *types.ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Errorf("Expected name validation error, got %v", err)
	}
}

func TestSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.LoadSession(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected no session initially, got %v", err)
	}

	if err := store.SaveSession(ctx, Session{Token: "first", Username: "ann"}); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}
	if err := store.SaveSession(ctx, Session{Token: "second", Scheme: "Bearer", Username: "ann"}); err != nil {
		t.Fatalf("Failed to replace session: %v", err)
	}

	sess, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if sess.Token != "second" || sess.Scheme != "Bearer" || sess.Username != "ann" {
		t.Errorf("Unexpected session %+v", sess)
	}
	if sess.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	if err := store.ClearSession(ctx); err != nil {
		t.Fatalf("Failed to clear session: %v", err)
	}
	if _, err := store.LoadSession(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected no session after clear, got %v", err)
	}

	if err := store.SaveSession(ctx, Session{}); err == nil {
		t.Error("Expected empty token to be rejected")
	}
}

func TestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "results.jsonl")
	snap, err := NewSnapshot(path)
	if err != nil {
		t.Fatalf("Failed to create snapshot: %v", err)
	}

	empty, skipped, err := snap.Load()
	if err != nil || len(empty) != 0 || skipped != 0 {
		t.Fatalf("Expected empty snapshot, got %v %d %v", empty, skipped, err)
	}

	elapsed := 1.5
	first := []types.ScrapedResult{
		{ID: 1, URL: "https://a.example", Content: json.RawMessage(`{"title":"A"}`), Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ProcessingTime: &elapsed},
		{ID: 2, URL: "https://b.example", Status: "failed"},
	}
	if err := snap.Write(first); err != nil {
		t.Fatalf("Failed to write snapshot: %v", err)
	}
	if err := snap.Append([]types.ScrapedResult{{ID: 3, URL: "https://c.example"}}); err != nil {
		t.Fatalf("Failed to append snapshot: %v", err)
	}

	// A truncated line from an interrupted write
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	f.WriteString("{\"id\": 4, \"url\n")
	f.Close()

	results, skipped, err := snap.Load()
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if skipped != 1 {
		t.Errorf("Expected 1 skipped line, got %d", skipped)
	}
	if string(results[0].Content) != `{"title":"A"}` || *results[0].ProcessingTime != 1.5 {
		t.Errorf("Unexpected first result %+v", results[0])
	}
	if !results[0].Timestamp.Equal(first[0].Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", first[0].Timestamp, results[0].Timestamp)
	}

	if err := snap.Write(first[:1]); err != nil {
		t.Fatalf("Failed to rewrite snapshot: %v", err)
	}
	results, _, _ = snap.Load()
	if len(results) != 1 {
		t.Errorf("Expected Write to replace contents, got %d results", len(results))
	}
}
