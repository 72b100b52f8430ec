package results

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// Rows converts scraped results into ordered rows for processing and
// export. Nested structure keeps content as a single nested value; flat
// structure spreads it into dotted columns such as content.title.
func Rows(results []types.ScrapedResult, structure types.OutputStructure) ([]*types.Row, error) {
	rows := make([]*types.Row, 0, len(results))
	for i := range results {
		r := &results[i]

		row := types.NewRow()
		row.Set("id", json.Number(strconv.FormatInt(r.ID, 10)))
		row.Set("url", r.URL)
		row.Set("keywords", r.Keywords)
		row.Set("data_type", r.DataType)
		row.Set("status", r.Status)
		if r.Timestamp.IsZero() {
			row.Set("timestamp", nil)
		} else {
			row.Set("timestamp", r.Timestamp.Format(time.RFC3339))
		}
		if r.ProcessingTime != nil {
			row.Set("processing_time", *r.ProcessingTime)
		} else {
			row.Set("processing_time", nil)
		}

		var content any
		if len(r.Content) > 0 {
			v, err := DecodeOrdered(r.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to decode content of result %d: %w", r.ID, err)
			}
			content = v
		}

		if structure == types.StructureFlat {
			flattenInto(row, "content", content)
		} else {
			row.Set("content", content)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Flatten spreads nested objects and arrays of row into dotted and
// indexed columns
func Flatten(row *types.Row) *types.Row {
	out := types.NewRow()
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		flattenInto(out, k, v)
	}
	return out
}

func flattenInto(out *types.Row, prefix string, v any) {
	switch x := v.(type) {
	case *types.Row:
		if x.Len() == 0 {
			out.Set(prefix, nil)
			return
		}
		for _, k := range x.Keys() {
			child, _ := x.Get(k)
			flattenInto(out, prefix+"."+k, child)
		}
	case map[string]any:
		flattenInto(out, prefix, types.RowFromMap(x))
	case []any:
		if len(x) == 0 {
			out.Set(prefix, nil)
			return
		}
		for i, child := range x {
			flattenInto(out, fmt.Sprintf("%s[%d]", prefix, i), child)
		}
	default:
		out.Set(prefix, v)
	}
}
