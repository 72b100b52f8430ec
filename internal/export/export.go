package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// DefaultFilename is used when no filename is given
const DefaultFilename = "scraped_data"

// Exporter writes row sets to files in one output directory
type Exporter struct {
	outputDir string
}

// NewExporter creates an exporter, creating outputDir if needed
func NewExporter(outputDir string) (*Exporter, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
	}, nil
}

// ExportAs renders rows in format (csv, json or xml) and writes them to
// filename inside the output directory, adding the format's extension
// when missing. The file is written to a temporary sibling first and
// renamed into place; the temporary file never outlives the call.
// It returns the path written.
func (e *Exporter) ExportAs(format types.OutputFormat, rows []*types.Row, filename string) (string, error) {
	data, err := Render(format, rows)
	if err != nil {
		return "", err
	}

	target := e.target(format, filename)
	if err := writeAtomic(target, data); err != nil {
		return "", err
	}
	return target, nil
}

// Render encodes rows in format without touching the filesystem
func Render(format types.OutputFormat, rows []*types.Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, types.NewValidationError("rows", "no rows to export")
	}

	switch format {
	case types.FormatCSV:
		return renderCSV(rows), nil
	case types.FormatJSON:
		return renderJSON(rows)
	case types.FormatXML:
		return renderXML(rows), nil
	}
	return nil, types.NewValidationError("format", "unsupported export format %q (want csv, json or xml)", format)
}

func (e *Exporter) target(format types.OutputFormat, filename string) string {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = DefaultFilename
	}
	ext := "." + string(format)
	if !strings.EqualFold(filepath.Ext(name), ext) {
		name += ext
	}
	return filepath.Join(e.outputDir, name)
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set export permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

// renderCSV quotes every value and doubles embedded quotes. Columns come
// from the first row; later rows missing a column get an empty value.
func renderCSV(rows []*types.Row) []byte {
	headers := rows[0].Keys()

	var buf bytes.Buffer
	for i, h := range headers {
		if i > 0 {
			buf.WriteByte(',')
		}
		if strings.ContainsAny(h, ",\"\r\n") {
			writeQuoted(&buf, h)
		} else {
			buf.WriteString(h)
		}
	}

	for _, r := range rows {
		buf.WriteByte('\n')
		for i, h := range headers {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, _ := r.Get(h)
			writeQuoted(&buf, Stringify(v))
		}
	}
	return buf.Bytes()
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	buf.WriteString(strings.ReplaceAll(s, `"`, `""`))
	buf.WriteByte('"')
}

func renderJSON(rows []*types.Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func renderXML(rows []*types.Row) []byte {
	headers := rows[0].Keys()
	tags := make([]string, len(headers))
	for i, h := range headers {
		tags[i] = TagName(h)
	}

	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<data>\n")
	for _, r := range rows {
		buf.WriteString("  <item>\n")
		for i, h := range headers {
			v, _ := r.Get(h)
			fmt.Fprintf(&buf, "    <%s>%s</%s>\n", tags[i], xmlEscaper.Replace(Stringify(v)), tags[i])
		}
		buf.WriteString("  </item>\n")
	}
	buf.WriteString("</data>")
	return buf.Bytes()
}

// TagName turns a field name into a valid XML element name. Characters
// outside the name alphabet become underscores, and names that would
// start with a digit, punctuation or "xml" get a leading underscore.
func TagName(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := b.String()
	if name == "" {
		return "_"
	}
	first := name[0]
	startsOK := first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || first > 127
	if !startsOK || strings.HasPrefix(strings.ToLower(name), "xml") {
		name = "_" + name
	}
	return name
}

// Stringify renders a row value for text formats. Nil is empty, nested
// values become compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int, int64, int32:
		return fmt.Sprint(x)
	}
	b, err := types.MarshalNoEscape(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
