package frontend

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
)

// tsconfig holds the module resolution settings of a tsconfig.json.
type tsconfig struct {
	path      string
	baseURL   string
	pathsBase string
	paths     map[string][]string
}

type rawTSConfig struct {
	Extends         string `json:"extends"`
	CompilerOptions struct {
		BaseURL *string             `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// loadTSConfig reads path and the configs it extends. Only relative `extends` are
// followed.
func loadTSConfig(reader SourceReader, path string, seen map[string]bool) (*tsconfig, error) {
	if seen[path] {
		return nil, fmt.Errorf("tsconfig extends cycle at %s", path)
	}
	seen[path] = true

	src, err := reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	std, err := hujson.Standardize([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var raw rawTSConfig
	if err := json.Unmarshal(std, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg := &tsconfig{path: path}
	if ext := raw.Extends; ext != "" && (strings.HasPrefix(ext, "./") || strings.HasPrefix(ext, "../")) {
		parentPath := filepath.Join(filepath.Dir(path), ext)
		if !strings.HasSuffix(parentPath, ".json") {
			parentPath += ".json"
		}
		parent, err := loadTSConfig(reader, parentPath, seen)
		if err != nil {
			return nil, err
		}
		*cfg = *parent
		cfg.path = path
	}

	dir := filepath.Dir(path)
	if raw.CompilerOptions.BaseURL != nil {
		cfg.baseURL = filepath.Join(dir, *raw.CompilerOptions.BaseURL)
	}
	if raw.CompilerOptions.Paths != nil {
		cfg.paths = raw.CompilerOptions.Paths
		cfg.pathsBase = dir
	}
	if cfg.baseURL != "" {
		cfg.pathsBase = cfg.baseURL
	}
	return cfg, nil
}

// candidates returns the file paths a non-relative specifier may map to, most specific
// `paths` pattern first, then baseUrl.
func (c *tsconfig) candidates(spec string) []string {
	var out []string

	patterns := make([]string, 0, len(c.paths))
	for p := range c.paths {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		pi, pj := wildcardPrefix(patterns[i]), wildcardPrefix(patterns[j])
		if len(pi) != len(pj) {
			return len(pi) > len(pj)
		}
		return patterns[i] < patterns[j]
	})

	for _, pattern := range patterns {
		star, ok := matchPattern(pattern, spec)
		if !ok {
			continue
		}
		for _, target := range c.paths[pattern] {
			out = append(out, filepath.Join(c.pathsBase, strings.Replace(target, "*", star, 1)))
		}
		break
	}
	if c.baseURL != "" {
		out = append(out, filepath.Join(c.baseURL, spec))
	}
	return out
}

func wildcardPrefix(pattern string) string {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// matchPattern matches spec against a `paths` key with at most one `*` and returns the
// text the wildcard stands for.
func matchPattern(pattern, spec string) (string, bool) {
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return "", pattern == spec
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	if len(spec) < len(prefix)+len(suffix) || !strings.HasPrefix(spec, prefix) || !strings.HasSuffix(spec, suffix) {
		return "", false
	}
	return spec[len(prefix) : len(spec)-len(suffix)], true
}
