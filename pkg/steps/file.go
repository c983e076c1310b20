package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/bmatcuk/doublestar/v4"
)

type readFileConfig struct {
	Path    string `yaml:"path"`
	BaseDir string `yaml:"base_dir"`
}

type readFileStep struct{ cfg readFileConfig }

func newReadFile(params map[string]any) (pipeline.Step, error) {
	var cfg readFileConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return &readFileStep{cfg: cfg}, nil
}

func (s *readFileStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	path, err := pathFrom(s.cfg.Path, data, "path")
	if err != nil {
		return nil, err
	}
	resolved, err := resolvePath(path, s.cfg.BaseDir, true)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	pc["file_size"] = len(content)
	pc["file_path"] = resolved

	slog.Info("read file", "path", resolved, "bytes", len(content))
	return string(content), nil
}

type writeFileConfig struct {
	Path string `yaml:"path"`
	Mode string `yaml:"mode"`
}

type writeFileStep struct{ cfg writeFileConfig }

func newWriteFile(params map[string]any) (pipeline.Step, error) {
	cfg := writeFileConfig{Mode: "w"}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	if cfg.Mode != "w" && cfg.Mode != "a" {
		return nil, fmt.Errorf("mode must be %q or %q, got %q", "w", "a", cfg.Mode)
	}
	return &writeFileStep{cfg: cfg}, nil
}

func (s *writeFileStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if s.cfg.Mode == "a" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(s.cfg.Path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	_, writeErr := io.WriteString(f, toText(data))
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return nil, fmt.Errorf("writing %s: %w", s.cfg.Path, writeErr)
	}

	info, err := os.Stat(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.cfg.Path, err)
	}
	pc["bytes_written"] = int(info.Size())

	slog.Info("wrote file", "path", s.cfg.Path, "mode", s.cfg.Mode, "bytes", info.Size())
	return s.cfg.Path, nil
}

type transferConfig struct {
	Src     string `yaml:"src"`
	Dest    string `yaml:"dest"`
	BaseDir string `yaml:"base_dir"`
}

// transferStep copies or moves a file.
type transferStep struct {
	cfg  transferConfig
	move bool
}

func newTransfer(move bool) registry.Constructor {
	return func(params map[string]any) (pipeline.Step, error) {
		var cfg transferConfig
		if err := registry.Decode(params, &cfg); err != nil {
			return nil, err
		}
		if cfg.Dest == "" {
			return nil, errors.New("dest is required")
		}
		return &transferStep{cfg: cfg, move: move}, nil
	}
}

func (s *transferStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	src, err := pathFrom(s.cfg.Src, data, "src")
	if err != nil {
		return nil, err
	}
	resolved, err := resolvePath(src, s.cfg.BaseDir, true)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Dest), 0o750); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	if s.move {
		err = moveFile(resolved, s.cfg.Dest)
	} else {
		err = copyFile(resolved, s.cfg.Dest)
	}
	if err != nil {
		return nil, err
	}

	pc["source_path"] = resolved
	pc["dest_path"] = s.cfg.Dest

	slog.Info("transferred file", "src", resolved, "dest", s.cfg.Dest, "move", s.move)
	return s.cfg.Dest, nil
}

// copyFile copies content, permissions and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	_, copyErr := io.Copy(out, in)
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("copying to %s: %w", dst, copyErr)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserving times on %s: %w", dst, err)
	}
	return nil
}

func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("moving %s: %w", src, err)
	}

	// Different filesystems.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return nil
}

type deleteFileConfig struct {
	Path    string `yaml:"path"`
	BaseDir string `yaml:"base_dir"`
}

type deleteFileStep struct{ cfg deleteFileConfig }

func newDeleteFile(params map[string]any) (pipeline.Step, error) {
	var cfg deleteFileConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return &deleteFileStep{cfg: cfg}, nil
}

func (s *deleteFileStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	path, err := pathFrom(s.cfg.Path, data, "path")
	if err != nil {
		return nil, err
	}
	resolved, err := resolvePath(path, s.cfg.BaseDir, true)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(resolved); err != nil {
		return nil, fmt.Errorf("deleting file: %w", err)
	}
	pc["deleted_path"] = resolved

	slog.Info("deleted file", "path", resolved)
	return true, nil
}

type listFilesConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
}

type listFilesStep struct{ cfg listFilesConfig }

func newListFiles(params map[string]any) (pipeline.Step, error) {
	cfg := listFilesConfig{Directory: ".", Pattern: "*"}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid pattern %q", cfg.Pattern)
	}
	return &listFilesStep{cfg: cfg}, nil
}

func (s *listFilesStep) Run(_ context.Context, _ any, pc pipeline.Context) (any, error) {
	matches, err := globFS(os.DirFS(s.cfg.Directory), []string{s.cfg.Pattern})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.cfg.Directory, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(s.cfg.Directory, filepath.FromSlash(m)))
	}
	pc["file_count"] = len(paths)

	slog.Info("listed files", "dir", s.cfg.Directory, "pattern", s.cfg.Pattern, "count", len(paths))
	return paths, nil
}

// globFS returns the sorted, de-duplicated regular files matching any pattern.
func globFS(fsys fs.FS, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}
