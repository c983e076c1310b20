package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const entrySuffix = ".json"

// FileStore keeps one JSON file per entry:
//
//	{Dir}/
//	  {key[0:2]}/
//	    {key}.json
//
// Writes go to a temp file in the same directory and are renamed into place,
// so readers never observe a partial entry and concurrent writers of the same
// key resolve as last write wins.
type FileStore struct {
	Dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	if !validKey(key) {
		return nil, nil
	}

	data, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (s *FileStore) Put(_ context.Context, entry *Entry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	path := s.entryPath(entry.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating cache shard: %w", err)
	}

	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return nil
	}
	if err := os.Remove(s.entryPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk error at %s: %w", path, err)
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), entrySuffix) {
			return nil
		}

		e, getErr := s.Get(ctx, strings.TrimSuffix(d.Name(), entrySuffix))
		if getErr != nil {
			slog.Warn("skipping unreadable cache entry", "path", path, "error", getErr)
			return nil
		}
		if e != nil {
			entries = append(entries, *e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	return entries, nil
}

// Clear removes every shard directory but keeps Dir itself.
func (s *FileStore) Clear(_ context.Context) error {
	children, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, c := range children {
		if err := os.RemoveAll(filepath.Join(s.Dir, c.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", c.Name(), err)
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) entryPath(key string) string {
	return filepath.Join(s.Dir, key[:2], key+entrySuffix)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
