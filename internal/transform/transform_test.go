package transform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

func row(kv ...any) *types.Row {
	r := types.NewRow()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func get(t *testing.T, r *types.Row, key string) any {
	t.Helper()
	v, ok := r.Get(key)
	if !ok {
		t.Fatalf("Missing key %q in %v", key, r.Keys())
	}
	return v
}

func TestProcessStageOrder(t *testing.T) {
	rows := []*types.Row{
		row("name", "  Widget  ", "price", " 12.50 ", "note", "", "date", "07/22/2023"),
		row("name", "  Widget  ", "price", " 12.50 ", "note", "", "date", "07/22/2023"),
		row("name", "gadget", "price", "n/a", "note", nil, "date", "not a date"),
	}
	opts := Options{
		RemoveDuplicates: true,
		RemoveEmpty:      true,
		TrimWhitespace:   true,
		ConvertNumeric:   true,
		Case:             CaseUpper,
		FormatDates:      true,
		Find:             "GET",
		Replace:          "got",
	}

	res := Process(rows, opts, nil)
	if len(res.Warnings) != 0 {
		t.Fatalf("Unexpected warnings %v", res.Warnings)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("Expected duplicates removed, got %d rows", len(res.Rows))
	}

	first := res.Rows[0]
	if get(t, first, "name") != "WIDgot" {
		t.Errorf("Expected trimmed, upper-cased then replaced name, got %q", get(t, first, "name"))
	}
	if get(t, first, "price") != 12.5 {
		t.Errorf("Expected numeric price, got %#v", get(t, first, "price"))
	}
	if get(t, first, "note") != nil {
		t.Errorf("Expected empty string normalised to nil, got %#v", get(t, first, "note"))
	}
	if get(t, first, "date") != "2023-07-22" {
		t.Errorf("Expected normalised date, got %q", get(t, first, "date"))
	}

	second := res.Rows[1]
	if get(t, second, "name") != "GADgot" {
		t.Errorf("Expected replace after upper-casing, got %q", get(t, second, "name"))
	}
	if get(t, second, "date") != "NOT A DATE" {
		t.Errorf("Non-dates must pass through, got %q", get(t, second, "date"))
	}

	if v, _ := rows[0].Get("name"); v != "  Widget  " {
		t.Error("Input rows must not be modified")
	}
}

func TestDedupeIdempotent(t *testing.T) {
	rows := []*types.Row{row("a", 1), row("a", 2), row("a", 1), row("a", 2), row("a", 3)}
	opts := Options{RemoveDuplicates: true}

	once := Process(rows, opts, nil).Rows
	twice := Process(once, opts, nil).Rows
	if len(once) != 3 || len(twice) != len(once) {
		t.Fatalf("Expected 3 rows both times, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		a, _ := once[i].MarshalJSON()
		b, _ := twice[i].MarshalJSON()
		if string(a) != string(b) {
			t.Errorf("Row %d differs: %s vs %s", i, a, b)
		}
	}
}

func TestDedupeKeyOrderMatters(t *testing.T) {
	rows := []*types.Row{row("a", 1, "b", 2), row("b", 2, "a", 1)}
	res := Process(rows, Options{RemoveDuplicates: true}, nil)
	if len(res.Rows) != 2 {
		t.Errorf("Rows serialise differently and must both survive, got %d", len(res.Rows))
	}
}

func TestDedupeManyRows(t *testing.T) {
	var rows []*types.Row
	for i := 0; i < 5000; i++ {
		rows = append(rows, row("id", fmt.Sprint(i%1000)))
	}
	res := Process(rows, Options{RemoveDuplicates: true}, nil)
	if len(res.Rows) != 1000 {
		t.Errorf("Expected 1000 unique rows, got %d", len(res.Rows))
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"07/22/2023", "2023-07-22"},
		{"2023-07-22T10:11:12Z", "2023-07-22"},
		{"2023-02-30", "2023-02-30"},
		{"13/45/2023", "13/45/2023"},
		{"not a date", "not a date"},
		{42.0, 42.0},
	}
	for _, tt := range tests {
		if got := formatDate(tt.in); got != tt.want {
			t.Errorf("formatDate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConvertNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", 42.0},
		{" -3.5 ", -3.5},
		{"1e3", 1000.0},
		{".5", 0.5},
		{"", ""},
		{"   ", "   "},
		{"12abc", "12abc"},
		{"0x1F", "0x1F"},
	}
	for _, tt := range tests {
		if got := convertNumeric(tt.in); got != tt.want {
			t.Errorf("convertNumeric(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestInvalidRegexSkipsStage(t *testing.T) {
	rows := []*types.Row{row("name", " Widget ")}
	res := Process(rows, Options{TrimWhitespace: true, Find: "([", Replace: "x"}, nil)

	if len(res.Warnings) != 1 {
		t.Fatalf("Expected one warning, got %v", res.Warnings)
	}
	var terr *types.TransformError
	if !errors.As(res.Warnings[0], &terr) || terr.Stage != "replace" {
		t.Errorf("Expected replace stage warning, got %v", res.Warnings[0])
	}
	if get(t, res.Rows[0], "name") != "Widget" {
		t.Error("Earlier stages must still apply")
	}
}

func TestPanickingStageRecovered(t *testing.T) {
	rows := []*types.Row{row("a", "x")}
	st := stage{name: "boom", enabled: true, run: func([]*types.Row) ([]*types.Row, error) {
		panic("kaboom")
	}}
	if _, err := runStage(st, rows); err == nil {
		t.Fatal("Expected panic to surface as an error")
	}
	if get(t, rows[0], "a") != "x" {
		t.Error("Rows must be untouched by a failed stage")
	}
}

func TestParseCase(t *testing.T) {
	for in, want := range map[string]Case{"": CaseNone, "none": CaseNone, "UPPER": CaseUpper, "lower": CaseLower} {
		got, err := ParseCase(in)
		if err != nil || got != want {
			t.Errorf("ParseCase(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCase("title"); err == nil {
		t.Error("Expected error for unknown case")
	}
}

func TestNoStagesIsIdentity(t *testing.T) {
	rows := []*types.Row{row("a", " x "), row("a", " x ")}
	res := Process(rows, Options{}, nil)
	if len(res.Rows) != 2 || get(t, res.Rows[0], "a") != " x " {
		t.Errorf("Disabled stages must be no-ops, got %v", res.Rows)
	}
}
