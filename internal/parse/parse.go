package parse

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lherron/hsmerge/internal/domain"
)

// Format represents supported input formats
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Column names accepted in every format. name is an alias of company_name.
const (
	ColumnID          = "id"
	ColumnCompanyName = "company_name"
	ColumnName        = "name"
	ColumnKey         = "key"
	ColumnAction      = "action"
)

// FormatFromPath picks a format from the file extension. Returns "" when the
// extension is not recognized.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// DetectFormat attempts to determine the format of the input data
func DetectFormat(data []byte) (Format, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", errors.New("input is empty")
	}

	if trimmed[0] == '[' || trimmed[0] == '{' {
		var js json.RawMessage
		if err := json.Unmarshal(trimmed, &js); err == nil {
			return FormatJSON, nil
		}
		return "", fmt.Errorf("input appears to be JSON but is invalid")
	}

	// A YAML batch is a sequence of mappings; anything else is read as CSV.
	if trimmed[0] == '-' {
		var seq []map[string]interface{}
		if err := yaml.Unmarshal(trimmed, &seq); err == nil && len(seq) > 0 {
			return FormatYAML, nil
		}
	}

	return FormatCSV, nil
}

// LoadFile reads a merge batch from disk, choosing the format by extension and
// falling back to content detection.
func LoadFile(path string) ([]domain.MergeInstruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	batch, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batch, nil
}

// Parse parses batch data in the specified format
// If format is empty, auto-detects the format
func Parse(data []byte, format Format) ([]domain.MergeInstruction, error) {
	if format == "" {
		detected, err := DetectFormat(data)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	switch format {
	case FormatCSV:
		return ParseCSV(bytes.NewReader(data))
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML, "yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ParseCSV reads a header row followed by one instruction per row. Extra
// columns are ignored and cells are trimmed.
func ParseCSV(r io.Reader) ([]domain.MergeInstruction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	nameCol, ok := columns[ColumnCompanyName]
	if !ok {
		nameCol, ok = columns[ColumnName]
	}
	if !ok {
		return nil, fmt.Errorf("missing required column %q", ColumnCompanyName)
	}
	for _, required := range []string{ColumnID, ColumnKey, ColumnAction} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(row []string, i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var batch []domain.MergeInstruction
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("invalid CSV at line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}
		batch = append(batch, domain.MergeInstruction{
			ID:     domain.RecordID(cell(row, columns[ColumnID])),
			Name:   cell(row, nameCol),
			Key:    cell(row, columns[ColumnKey]),
			Action: domain.Action(cell(row, columns[ColumnAction])),
		})
	}
	return batch, nil
}

// ParseJSON parses a JSON array of instruction objects
func ParseJSON(data []byte) ([]domain.MergeInstruction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return fromRows(rows)
}

// ParseYAML parses a YAML sequence of instruction mappings
func ParseYAML(data []byte) ([]domain.MergeInstruction, error) {
	var rows []map[string]interface{}
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows []map[string]interface{}) ([]domain.MergeInstruction, error) {
	batch := make([]domain.MergeInstruction, 0, len(rows))
	for i, row := range rows {
		get := func(key string) (string, bool) {
			v, ok := row[key]
			if !ok || v == nil {
				return "", false
			}
			return strings.TrimSpace(scalar(v)), true
		}

		id, ok := get(ColumnID)
		if !ok {
			return nil, fmt.Errorf("record %d: missing %q", i+1, ColumnID)
		}
		name, ok := get(ColumnCompanyName)
		if !ok {
			name, _ = get(ColumnName)
		}
		key, ok := get(ColumnKey)
		if !ok {
			return nil, fmt.Errorf("record %d: missing %q", i+1, ColumnKey)
		}
		action, ok := get(ColumnAction)
		if !ok {
			return nil, fmt.Errorf("record %d: missing %q", i+1, ColumnAction)
		}

		batch = append(batch, domain.MergeInstruction{
			ID:     domain.RecordID(id),
			Name:   name,
			Key:    key,
			Action: domain.Action(action),
		})
	}
	return batch, nil
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
