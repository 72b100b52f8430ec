package jobconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// LoadFile reads a job definition from a YAML or JSON file. Fields the
// file leaves out take their form defaults.
func LoadFile(path string) (types.ScrapeJobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ScrapeJobConfig{}, fmt.Errorf("failed to read job file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a job definition. ext selects JSON for ".json";
// anything else is read as YAML.
func Parse(data []byte, ext string) (types.ScrapeJobConfig, error) {
	cfg := Defaults()

	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return types.ScrapeJobConfig{}, fmt.Errorf("failed to parse job JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return types.ScrapeJobConfig{}, fmt.Errorf("failed to parse job YAML: %w", err)
		}
	}

	AssignRowIDs(cfg.CustomSelectors)
	return cfg, nil
}

// Marshal encodes cfg as "yaml" or "json"
func Marshal(cfg types.ScrapeJobConfig, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job: %w", err)
		}
		return append(data, '\n'), nil
	case "yaml", "yml", "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to marshal job: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported job format %q", format)
}

// AssignRowIDs gives every selector row without an ID a fresh one
func AssignRowIDs(rows []types.SelectorRow) {
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
	}
}

// ParseSelectorFlag parses "field=type:selector" or "field=selector"
// (css assumed) into a selector row
func ParseSelectorFlag(s string) (types.SelectorRow, error) {
	field, rest, ok := strings.Cut(s, "=")
	if !ok {
		return types.SelectorRow{}, types.NewValidationError("selector", "expected field=selector, got %q", s)
	}

	row := types.SelectorRow{
		ID:           uuid.NewString(),
		FieldName:    strings.TrimSpace(field),
		SelectorType: types.SelectorCSS,
		Selector:     strings.TrimSpace(rest),
	}
	if typ, sel, ok := strings.Cut(rest, ":"); ok && types.SelectorType(strings.ToLower(typ)).Valid() {
		row.SelectorType = types.SelectorType(strings.ToLower(typ))
		row.Selector = strings.TrimSpace(sel)
	}
	return row, nil
}
