package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/api"
	"github.com/bmatcuk/doublestar/v4"
)

// Discover finds *.pipeline.yaml files under root up to maxDepth and loads them.
// A maxDepth of -1 means unlimited. 0 means only root itself.
// Results are sorted by path depth (parents before children), then by path.
func Discover(root string, maxDepth int) ([]*api.Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	paths, err := collectConfigPaths(absRoot, maxDepth)
	if err != nil {
		return nil, err
	}

	return loadAll(paths)
}

// DiscoverPaths is Discover without loading, for listing configs that may not
// be valid.
func DiscoverPaths(root string, maxDepth int) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	return collectConfigPaths(absRoot, maxDepth)
}

func collectConfigPaths(absRoot string, maxDepth int) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(absRoot), "**/*"+api.ConfigSuffix, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("walking directory tree: %w", err)
	}

	paths := make([]string, 0, len(matches))
	for _, rel := range matches {
		if maxDepth >= 0 && pathDepth(filepath.Dir(rel)) > maxDepth {
			continue
		}
		paths = append(paths, filepath.Join(absRoot, filepath.FromSlash(rel)))
	}

	slices.SortFunc(paths, func(a, b string) int {
		if d := pathDepth(a) - pathDepth(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return paths, nil
}

func loadAll(paths []string) ([]*api.Config, error) {
	configs := make([]*api.Config, 0, len(paths))
	for _, p := range paths {
		cfg, err := api.LoadConfig(p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
