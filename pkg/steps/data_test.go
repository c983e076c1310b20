package steps

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
)

func TestJSONRoundTrip(t *testing.T) {
	parsed, _ := runStep(t, newStep(t, "parse_json", nil), `{"b": [1, 2], "a": "<x>"}`)
	want := map[string]any{"a": "<x>", "b": []any{float64(1), float64(2)}}
	if !reflect.DeepEqual(parsed, want) {
		t.Fatalf("parse_json = %#v", parsed)
	}

	out, pc := runStep(t, newStep(t, "to_json", map[string]any{"indent": 0}), parsed)
	if out != `{"a":"<x>","b":[1,2]}` {
		t.Errorf("compact to_json = %s", out)
	}
	if pc["output_size"] != len(out.(string)) {
		t.Errorf("output_size = %v", pc["output_size"])
	}

	out, _ = runStep(t, newStep(t, "to_json", nil), map[string]any{"k": 1})
	if out != "{\n  \"k\": 1\n}" {
		t.Errorf("indented to_json = %q", out)
	}

	_, err := newStep(t, "parse_json", nil).Run(context.Background(), "{nope", pipeline.Context{})
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	parsed, _ := runStep(t, newStep(t, "parse_yaml", nil), "name: x\nitems:\n  - 1\n  - two\n")
	want := map[string]any{"name": "x", "items": []any{1, "two"}}
	if !reflect.DeepEqual(parsed, want) {
		t.Fatalf("parse_yaml = %#v", parsed)
	}

	out, pc := runStep(t, newStep(t, "to_yaml", nil), map[string]any{"items": []any{"a"}})
	if out != "items:\n  - a\n" {
		t.Errorf("to_yaml = %q", out)
	}
	if pc["output_size"] != len(out.(string)) {
		t.Errorf("output_size = %v", pc["output_size"])
	}
}

func TestParseCSV(t *testing.T) {
	text := "name,age\nann,31\nbob\n"

	out, pc := runStep(t, newStep(t, "parse_csv", nil), text)
	want := []map[string]any{
		{"name": "ann", "age": "31"},
		{"name": "bob", "age": nil},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %#v", out)
	}
	if pc["row_count"] != 2 || pc["column_count"] != 2 {
		t.Errorf("context = %v", pc)
	}

	out, pc = runStep(t, newStep(t, "parse_csv", map[string]any{"has_header": false, "delimiter": ";"}), "a;b\nc;d\n")
	if !reflect.DeepEqual(out, [][]string{{"a", "b"}, {"c", "d"}}) || pc["row_count"] != 2 {
		t.Errorf("headerless: out=%v context=%v", out, pc)
	}

	if err := constructErr(t, "parse_csv", map[string]any{"delimiter": ";;"}); err == nil {
		t.Error("expected error for multi-character delimiter")
	}
}

func TestToCSV(t *testing.T) {
	rows := []any{
		map[string]any{"name": "ann", "age": float64(31)},
		map[string]any{"name": "bob, jr", "age": nil},
	}

	out, pc := runStep(t, newStep(t, "to_csv", nil), rows)
	if out != "age,name\n31,ann\n,\"bob, jr\"\n" {
		t.Errorf("got %q", out)
	}
	if pc["row_count"] != 2 {
		t.Errorf("row_count = %v", pc["row_count"])
	}

	out, _ = runStep(t, newStep(t, "to_csv", map[string]any{"columns": []any{"name", "age"}, "delimiter": "\t"}), rows)
	if !strings.HasPrefix(out.(string), "name\tage\nann\t31\n") {
		t.Errorf("explicit columns: %q", out)
	}

	out, _ = runStep(t, newStep(t, "to_csv", nil), []any{})
	if out != "" {
		t.Errorf("empty input: %q", out)
	}

	_, err := newStep(t, "to_csv", nil).Run(context.Background(), []any{"not a row"}, pipeline.Context{})
	if err == nil {
		t.Error("expected error for non-mapping rows")
	}
}

func TestFilterData(t *testing.T) {
	items := []map[string]any{
		{"name": "a", "score": 10, "tags": "go,yaml"},
		{"name": "b", "score": 3.5},
		{"name": "c", "score": float64(10), "draft": nil},
	}

	tests := []struct {
		name   string
		params map[string]any
		want   []string
	}{
		{"equals across number types", map[string]any{"field": "score", "value": 10}, []string{"a", "c"}},
		{"contains", map[string]any{"field": "tags", "value": "yaml", "condition": "contains"}, []string{"a"}},
		{"gt", map[string]any{"field": "score", "value": 5, "condition": "gt"}, []string{"a", "c"}},
		{"lt", map[string]any{"field": "score", "value": 5, "condition": "lt"}, []string{"b"}},
		{"lt on strings", map[string]any{"field": "name", "value": "b", "condition": "lt"}, []string{"a"}},
		{"exists", map[string]any{"field": "draft", "condition": "exists"}, []string{"c"}},
		{"expression", map[string]any{"expression": `score >= 10 && name != "c"`}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, pc := runStep(t, newStep(t, "filter_data", tt.params), items)
			var names []string
			for _, item := range out.([]map[string]any) {
				names = append(names, item["name"].(string))
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("got %v, want %v", names, tt.want)
			}
			if pc["input_count"] != 3 || pc["output_count"] != len(tt.want) {
				t.Errorf("context = %v", pc)
			}
		})
	}
}

func TestFilterData_Errors(t *testing.T) {
	for _, params := range []map[string]any{
		nil,
		{"field": "x", "condition": "near"},
		{"field": "x", "expression": "true"},
		{"expression": "score >"},
	} {
		if err := constructErr(t, "filter_data", params); err == nil {
			t.Errorf("expected construction error for %v", params)
		}
	}

	step := newStep(t, "filter_data", map[string]any{"expression": "name"})
	_, err := step.Run(context.Background(), []any{map[string]any{"name": "a"}}, pipeline.Context{})
	if err == nil {
		t.Error("expected error for non-boolean expression result")
	}
}

func TestJQ(t *testing.T) {
	entries := []map[string]any{
		{"title": "one", "score": 1},
		{"title": "two", "score": 5},
	}

	tests := []struct {
		name   string
		params map[string]any
		want   any
	}{
		{"single result", map[string]any{"expression": `map(.title)`}, []any{"one", "two"}},
		{"stream", map[string]any{"expression": `.[] | select(.score > 2) | .title`}, "two"},
		{"many results", map[string]any{"expression": `.[].title`}, []any{"one", "two"}},
		{"all wraps single", map[string]any{"expression": `.[0].title`, "all": true}, []any{"one"}},
		{"no result", map[string]any{"expression": `empty`}, nil},
		{"context variable", map[string]any{"expression": `$context.app`}, "digest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := newStep(t, "jq", tt.params)
			out, err := step.Run(context.Background(), entries, pipeline.Context{"app": "digest"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(out, tt.want) {
				t.Errorf("got %#v, want %#v", out, tt.want)
			}
		})
	}

	if err := constructErr(t, "jq", map[string]any{"expression": ".["}); err == nil {
		t.Error("expected error for invalid expression")
	}

	_, err := newStep(t, "jq", map[string]any{"expression": `error("bad")`}).
		Run(context.Background(), nil, pipeline.Context{})
	if err == nil {
		t.Error("expected runtime error")
	}
}
