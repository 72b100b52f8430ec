package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// LoadFile reads a schedule definition from a YAML or JSON file
func LoadFile(path string) (types.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Schedule{}, fmt.Errorf("failed to read schedule file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a schedule definition. ext selects JSON for ".json";
// anything else is read as YAML. New schedules start active.
func Parse(data []byte, ext string) (types.Schedule, error) {
	sc := types.Schedule{IsActive: true, TimeoutSec: DefaultTimeoutSec, MaxDepth: MinMaxDepth}

	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			return types.Schedule{}, fmt.Errorf("failed to parse schedule JSON: %w", err)
		}
		return sc, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return types.Schedule{}, fmt.Errorf("failed to parse schedule YAML: %w", err)
	}
	return sc, nil
}
