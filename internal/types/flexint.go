package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlexInt is an integer that also decodes from numeric strings and floats.
// Form inputs and hand-written job files frequently carry "15" or 15.0
// where an integer is expected; fractions are truncated toward zero.
type FlexInt int

// Int returns the plain int value
func (f FlexInt) Int() int {
	return int(f)
}

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode integer string: %w", err)
		}
		raw = s
	}

	v, err := ParseFlexInt(raw)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// UnmarshalYAML accepts the same inputs as UnmarshalJSON
func (f *FlexInt) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*f = 0
		return nil
	}
	v, err := ParseFlexInt(node.Value)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFlexInt converts a user supplied numeric string to an integer
func ParseFlexInt(s string) (FlexInt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return clampToInt(float64(i)), nil
	}

	fl, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(fl) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return clampToInt(math.Trunc(fl)), nil
}

func clampToInt(v float64) FlexInt {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return FlexInt(v)
}
