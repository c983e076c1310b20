package steps

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	f := writeTestFile(t, dir, "in.txt", "hello\nworld\n")

	tests := []struct {
		name   string
		params map[string]any
		data   any
	}{
		{"path param", map[string]any{"path": f}, nil},
		{"path from input", nil, f},
		{"inside base dir", map[string]any{"path": f, "base_dir": dir}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, pc := runStep(t, newStep(t, "read_file", tt.params), tt.data)
			if out != "hello\nworld\n" {
				t.Errorf("got %q", out)
			}
			if pc["file_size"] != 12 || pc["file_path"] != f {
				t.Errorf("context = %v", pc)
			}
		})
	}
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	outside := writeTestFile(t, t.TempDir(), "secret.txt", "x")

	tests := []struct {
		name    string
		params  map[string]any
		data    any
		wantErr string
	}{
		{"no path", nil, nil, "path is required"},
		{"missing file", map[string]any{"path": filepath.Join(dir, "nope")}, nil, "file not found"},
		{"outside base dir", map[string]any{"path": outside, "base_dir": dir}, nil, "outside allowed directory"},
		{"traversal", map[string]any{"path": filepath.Join(dir, "..", filepath.Base(filepath.Dir(outside)), "secret.txt"), "base_dir": dir}, nil, "outside allowed directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newStep(t, "read_file", tt.params).Run(context.Background(), tt.data, pipeline.Context{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "nested", "out.txt")

	out, pc := runStep(t, newStep(t, "write_file", map[string]any{"path": f}), "first")
	if out != f || pc["bytes_written"] != 5 {
		t.Fatalf("out=%v context=%v", out, pc)
	}

	_, pc = runStep(t, newStep(t, "write_file", map[string]any{"path": f, "mode": "a"}), "+second")
	if pc["bytes_written"] != 12 {
		t.Errorf("bytes_written after append = %v", pc["bytes_written"])
	}

	content, err := os.ReadFile(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "first+second" {
		t.Errorf("content = %q", content)
	}

	if err := constructErr(t, "write_file", map[string]any{"path": f, "mode": "x"}); err == nil {
		t.Error("expected error for invalid mode")
	}
	if err := constructErr(t, "write_file", nil); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestCopyAndMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := writeTestFile(t, dir, "a.txt", "payload")
	copied := filepath.Join(dir, "copies", "b.txt")
	moved := filepath.Join(dir, "moved", "c.txt")

	out, pc := runStep(t, newStep(t, "copy_file", map[string]any{"dest": copied}), src)
	if out != copied || pc["source_path"] != src || pc["dest_path"] != copied {
		t.Fatalf("copy: out=%v context=%v", out, pc)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("copy removed the source")
	}

	srcInfo, _ := os.Stat(src)
	dstInfo, err := os.Stat(copied)
	if err != nil {
		t.Fatal(err)
	}
	if !srcInfo.ModTime().Equal(dstInfo.ModTime()) {
		t.Errorf("modification time not preserved")
	}

	if _, pc = runStep(t, newStep(t, "move_file", map[string]any{"src": copied, "dest": moved}), nil); pc["dest_path"] != moved {
		t.Fatalf("move: context=%v", pc)
	}
	if _, err := os.Stat(copied); !os.IsNotExist(err) {
		t.Error("move left the source behind")
	}
	content, err := os.ReadFile(moved)
	if err != nil || string(content) != "payload" {
		t.Errorf("moved content = %q, %v", content, err)
	}
}

func TestDeleteFile(t *testing.T) {
	dir := t.TempDir()
	f := writeTestFile(t, dir, "gone.txt", "x")

	out, pc := runStep(t, newStep(t, "delete_file", map[string]any{"path": f}), nil)
	if out != true || pc["deleted_path"] != f {
		t.Fatalf("out=%v context=%v", out, pc)
	}
	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Error("file still exists")
	}

	_, err := newStep(t, "delete_file", map[string]any{"path": f}).Run(context.Background(), nil, pipeline.Context{})
	if err == nil {
		t.Error("expected error deleting a missing file")
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.log", "")
	writeTestFile(t, dir, "b.txt", "")
	writeTestFile(t, dir, "sub/c.log", "")

	tests := []struct {
		pattern string
		want    []string
	}{
		{"*.log", []string{"a.log"}},
		{"**/*.log", []string{"a.log", "sub/c.log"}},
		{"*", []string{"a.log", "b.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			out, pc := runStep(t, newStep(t, "list_files", map[string]any{"directory": dir, "pattern": tt.pattern}), nil)

			want := make([]string, len(tt.want))
			for i, w := range tt.want {
				want[i] = filepath.Join(dir, filepath.FromSlash(w))
			}
			if !reflect.DeepEqual(out, want) {
				t.Errorf("got %v, want %v", out, want)
			}
			if pc["file_count"] != len(want) {
				t.Errorf("file_count = %v", pc["file_count"])
			}
		})
	}

	if err := constructErr(t, "list_files", map[string]any{"pattern": "[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
