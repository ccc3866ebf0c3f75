// Package export renders result rows as delimited text or JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/wastemap/internal/apperr"
)

// ErrInvalidSchema is returned when an export has no columns.
var ErrInvalidSchema = fmt.Errorf("%w: at least one column is required", apperr.ErrInvalidSchema)

// Row is one result record keyed by source field.
type Row map[string]any

// Column maps a row field to its header label.
type Column struct {
	Field string `json:"field"`
	Label string `json:"label"`
}

// Format selects how a result is encoded.
type Format string

const (
	// FormatJSON encodes rows as a JSON array.
	FormatJSON Format = "json"
	// FormatCSV encodes rows as comma-separated values.
	FormatCSV Format = "csv"
	// FormatGeoJSON encodes located entities as a FeatureCollection.
	FormatGeoJSON Format = "geojson"
)

// ParseFormat reads a format selector. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatGeoJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: unsupported format %q", apperr.ErrInvalidQuery, s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatGeoJSON:
		return "application/geo+json"
	default:
		return "application/json"
	}
}

// Encoder writes delimited text. The zero value writes comma-separated
// output with LF line endings.
type Encoder struct {
	Delimiter rune
	UseCRLF   bool
}

// Encode writes a header of column labels followed by one line per row.
// Fields a row lacks are written empty.
func (e Encoder) Encode(w io.Writer, rows []Row, schema []Column) error {
	if len(schema) == 0 {
		return ErrInvalidSchema
	}

	cw := csv.NewWriter(w)
	if e.Delimiter != 0 {
		cw.Comma = e.Delimiter
	}
	cw.UseCRLF = e.UseCRLF

	record := make([]string, len(schema))
	for i, col := range schema {
		record[i] = col.Label
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range rows {
		for i, col := range schema {
			record[i] = FormatValue(row[col.Field])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv writer error: %w", err)
	}
	return nil
}

// ToDelimitedText renders rows as comma-separated text.
func ToDelimitedText(rows []Row, schema []Column) (string, error) {
	var buf bytes.Buffer
	if err := (Encoder{}).Encode(&buf, rows, schema); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatValue renders one cell. Times at midnight render as a date.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return formatTime(x)
	case *time.Time:
		if x == nil {
			return ""
		}
		return formatTime(*x)
	case []string:
		return strings.Join(x, "; ")
	case json.RawMessage:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
