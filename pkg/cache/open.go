package cache

import (
	"context"
	"fmt"
	"strings"
)

// DefaultDir is the file store location used when no store is configured.
const DefaultDir = ".bonesaw_cache"

// Open creates a store from a location string:
//
//	memory               in-process map
//	file:<dir> or <dir>  one file per entry
//	sqlite:<path>        embedded database
//	redis://…, rediss://…
func Open(ctx context.Context, location string) (Store, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("cache location is empty")
	case location == "memory" || location == "memory:":
		return NewMemoryStore(), nil
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return OpenRedis(ctx, location)
	case strings.HasPrefix(location, "sqlite:"):
		path := strings.TrimPrefix(location, "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("sqlite cache location has no path")
		}
		return OpenSQLite(ctx, path)
	case strings.HasPrefix(location, "file:"):
		dir := strings.TrimPrefix(location, "file:")
		if dir == "" {
			dir = DefaultDir
		}
		return NewFileStore(dir)
	default:
		return NewFileStore(location)
	}
}
