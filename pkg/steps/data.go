package steps

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"gopkg.in/yaml.v3"
)

type parseJSONStep struct{}

func (parseJSONStep) Run(_ context.Context, data any, _ pipeline.Context) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(toText(data)), &out); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return out, nil
}

type toJSONConfig struct {
	Indent int `yaml:"indent"`
}

type toJSONStep struct{ indent int }

func newToJSON(params map[string]any) (pipeline.Step, error) {
	cfg := toJSONConfig{Indent: 2}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Indent < 0 {
		return nil, fmt.Errorf("indent must not be negative, got %d", cfg.Indent)
	}
	return &toJSONStep{indent: cfg.Indent}, nil
}

func (s *toJSONStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if s.indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", s.indent))
	}
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}

	out := strings.TrimSuffix(buf.String(), "\n")
	pc["output_size"] = len(out)
	return out, nil
}

type parseYAMLStep struct{}

func (parseYAMLStep) Run(_ context.Context, data any, _ pipeline.Context) (any, error) {
	var out any
	if err := yaml.Unmarshal([]byte(toText(data)), &out); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return out, nil
}

type toYAMLConfig struct {
	Indent int `yaml:"indent"`
}

type toYAMLStep struct{ indent int }

func newToYAML(params map[string]any) (pipeline.Step, error) {
	cfg := toYAMLConfig{Indent: 2}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Indent <= 0 {
		return nil, fmt.Errorf("indent must be positive, got %d", cfg.Indent)
	}
	return &toYAMLStep{indent: cfg.Indent}, nil
}

func (s *toYAMLStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(s.indent)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}

	out := buf.String()
	pc["output_size"] = len(out)
	return out, nil
}

type csvConfig struct {
	HasHeader bool     `yaml:"has_header"`
	Delimiter string   `yaml:"delimiter"`
	Columns   []string `yaml:"columns"`
}

func (c csvConfig) comma() (rune, error) {
	r, size := utf8.DecodeRuneInString(c.Delimiter)
	if size == 0 || size != len(c.Delimiter) || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	return r, nil
}

type parseCSVStep struct {
	comma     rune
	hasHeader bool
}

func newParseCSV(params map[string]any) (pipeline.Step, error) {
	cfg := csvConfig{HasHeader: true, Delimiter: ","}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Columns) > 0 {
		return nil, errors.New("columns only applies to to_csv")
	}
	comma, err := cfg.comma()
	if err != nil {
		return nil, err
	}
	return &parseCSVStep{comma: comma, hasHeader: cfg.HasHeader}, nil
}

// Run returns a list of mappings keyed by header when has_header is set,
// otherwise a list of string lists.
func (s *parseCSVStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	r := csv.NewReader(strings.NewReader(toText(data)))
	r.Comma = s.comma
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}

	if !s.hasHeader {
		pc["row_count"] = len(records)
		return records, nil
	}

	rows := []map[string]any{}
	if len(records) > 0 {
		header := records[0]
		for _, rec := range records[1:] {
			row := make(map[string]any, len(header))
			for i, col := range header {
				if i < len(rec) {
					row[col] = rec[i]
				} else {
					row[col] = nil
				}
			}
			rows = append(rows, row)
		}
		pc["column_count"] = len(header)
	}
	pc["row_count"] = len(rows)

	slog.Info("parsed CSV", "rows", len(rows))
	return rows, nil
}

type toCSVStep struct {
	comma   rune
	columns []string
}

func newToCSV(params map[string]any) (pipeline.Step, error) {
	cfg := csvConfig{Delimiter: ","}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	comma, err := cfg.comma()
	if err != nil {
		return nil, err
	}
	return &toCSVStep{comma: comma, columns: cfg.Columns}, nil
}

// Run writes a header row and one row per mapping. Without explicit columns
// the first row's keys are used in sorted order.
func (s *toCSVStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	rows, err := toRecords(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		pc["row_count"] = 0
		pc["output_size"] = 0
		return "", nil
	}

	columns := s.columns
	if len(columns) == 0 {
		for k := range rows[0] {
			columns = append(columns, k)
		}
		slices.Sort(columns)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = s.comma
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("writing CSV: %w", err)
	}
	for _, row := range rows {
		rec := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok && v != nil {
				rec[i] = toText(v)
			}
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("writing CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing CSV: %w", err)
	}

	out := buf.String()
	pc["row_count"] = len(rows)
	pc["output_size"] = len(out)
	return out, nil
}
