package runtime

import (
	"fmt"
	"math"
	"strconv"

	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	"github.com/cafescraper/actorkit/internal/runtime/protocol"
)

// ColumnFormat is the declared value format of one output column.
type ColumnFormat string

const (
	FormatText    ColumnFormat = "text"
	FormatInteger ColumnFormat = "integer"
	FormatBoolean ColumnFormat = "boolean"
	FormatArray   ColumnFormat = "array"
	FormatObject  ColumnFormat = "object"
)

// ColumnSpec declares one output column: a display label, a unique record
// key, and the value format records must satisfy. Column order defines
// display order only.
type ColumnSpec struct {
	Label  string       `json:"label"`
	Key    string       `json:"key"`
	Format ColumnFormat `json:"format"`
}

func validateColumns(columns []ColumnSpec) error {
	if len(columns) == 0 {
		return fmt.Errorf("actorkit: table header needs at least one column")
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if col.Key == "" {
			return fmt.Errorf("actorkit: column %q has an empty key", col.Label)
		}
		if _, dup := seen[col.Key]; dup {
			return fmt.Errorf("actorkit: duplicate column key %q", col.Key)
		}
		seen[col.Key] = struct{}{}
		switch col.Format {
		case FormatText, FormatInteger, FormatBoolean, FormatArray, FormatObject:
		default:
			return fmt.Errorf("actorkit: column %q has unknown format %q", col.Key, col.Format)
		}
	}
	return nil
}

// tableSchema is the active header plus a key index for record validation.
type tableSchema struct {
	columns []ColumnSpec
	formats map[string]ColumnFormat
}

func newTableSchema(columns []ColumnSpec) (*tableSchema, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	cols := make([]ColumnSpec, len(columns))
	copy(cols, columns)
	formats := make(map[string]ColumnFormat, len(cols))
	for _, col := range cols {
		formats[col.Key] = col.Format
	}
	return &tableSchema{columns: cols, formats: formats}, nil
}

func (s *tableSchema) wireColumns() []protocol.Column {
	out := make([]protocol.Column, len(s.columns))
	for i, col := range s.columns {
		out[i] = protocol.Column{Label: col.Label, Key: col.Key, Format: string(col.Format)}
	}
	return out
}

// validateRecord checks that every record key is declared and every value is
// representable in its column's format. It returns the record with coerced
// values; on failure it returns a SchemaMismatchError naming every offending
// key, and the record must not be transmitted.
func (s *tableSchema) validateRecord(record map[string]any) (map[string]any, *errspkg.SchemaMismatchError) {
	violations := map[string]string{}
	out := make(map[string]any, len(record))

	for key, value := range record {
		format, declared := s.formats[key]
		if !declared {
			violations[key] = "key not declared in table header"
			continue
		}
		coerced, err := coerceValue(format, value)
		if err != nil {
			violations[key] = err.Error()
			continue
		}
		out[key] = coerced
	}

	if len(violations) > 0 {
		return nil, &errspkg.SchemaMismatchError{Violations: violations}
	}
	return out, nil
}

// coerceValue applies the lenient coercion policy: integer columns accept
// numeric strings ("42") and integral floats; boolean columns accept
// "true"/"false". Nulls pass through for every format.
func coerceValue(format ColumnFormat, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch format {
	case FormatText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("text column got %T", value)
		}
		return s, nil

	case FormatInteger:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("integer column got fractional number %v", v)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("integer column got non-numeric text %q", v)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("integer column got %T", value)
		}

	case FormatBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("boolean column got text %q", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("boolean column got %T", value)
		}

	case FormatArray:
		switch value.(type) {
		case []any, []string, []int, []int64, []float64, []map[string]any:
			return value, nil
		default:
			return nil, fmt.Errorf("array column got %T", value)
		}

	case FormatObject:
		if _, ok := value.(map[string]any); !ok {
			return nil, fmt.Errorf("object column got %T", value)
		}
		return value, nil

	default:
		return nil, fmt.Errorf("unknown column format %q", format)
	}
}
