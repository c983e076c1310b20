package steps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Step inputs may arrive as native Go values from an earlier step or as
// JSON-decoded values restored from the cache, so these helpers accept both.

func toText(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// splitLines splits on \n, \r\n and \r without producing a trailing empty line.
func splitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func toLines(data any) ([]string, error) {
	switch v := data.(type) {
	case nil:
		return []string{}, nil
	case string:
		return splitLines(v), nil
	case []byte:
		return splitLines(string(v)), nil
	case []string:
		return slices.Clone(v), nil
	case []any:
		lines := make([]string, len(v))
		for i, item := range v {
			lines[i] = toText(item)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("expected text or a list of lines, got %T", data)
	}
}

func toRecords(data any) ([]map[string]any, error) {
	switch v := data.(type) {
	case nil:
		return []map[string]any{}, nil
	case []map[string]any:
		return v, nil
	case []map[string]string:
		out := make([]map[string]any, len(v))
		for i, row := range v {
			m := make(map[string]any, len(row))
			for k, val := range row {
				m[k] = val
			}
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d: expected a mapping, got %T", i, item)
			}
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of mappings, got %T", data)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// pathFrom picks the configured path, falling back to the step input.
func pathFrom(param string, data any, what string) (string, error) {
	if param != "" {
		return param, nil
	}
	if s, ok := data.(string); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%s is required (as a parameter or as string input)", what)
}

// resolvePath makes path absolute and, when baseDir is set, refuses paths
// that resolve outside it.
func resolvePath(path, baseDir string, mustExist bool) (string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	if baseDir != "" {
		base, err := filepath.Abs(baseDir)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", baseDir, err)
		}
		rel, err := filepath.Rel(base, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q is outside allowed directory %q (resolved to %s)", path, baseDir, resolved)
		}
	}

	if mustExist {
		if _, err := os.Stat(resolved); err != nil {
			return "", fmt.Errorf("file not found: %s: %w", path, err)
		}
	}
	return resolved, nil
}
