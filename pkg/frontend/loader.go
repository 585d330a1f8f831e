package frontend

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/confts/confts/pkg/ast"
)

// SourceReader supplies source text to the loader.
type SourceReader interface {
	ReadFile(name string) (string, error)
	Exists(name string) bool
}

// OSReader reads sources from the filesystem.
type OSReader struct{}

func (OSReader) ReadFile(name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (OSReader) Exists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

// MemoryReader serves sources from a map of file name to text.
type MemoryReader map[string]string

// NewMemoryReader copies files into a MemoryReader with cleaned names.
func NewMemoryReader(files map[string]string) MemoryReader {
	m := make(MemoryReader, len(files))
	for name, src := range files {
		m[filepath.Clean(name)] = src
	}
	return m
}

func (m MemoryReader) ReadFile(name string) (string, error) {
	src, ok := m[filepath.Clean(name)]
	if !ok {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return src, nil
}

func (m MemoryReader) Exists(name string) bool {
	_, ok := m[filepath.Clean(name)]
	return ok
}

// Program is the set of files reachable from an entry file, with name resolution.
type Program struct {
	entry   string
	files   []*ast.File
	byName  map[string]*ast.File
	imports map[string]map[string]string
	binder  *binder
}

// Load parses entry and every file it reaches through imports and re-exports.
func Load(reader SourceReader, entry string) (*Program, error) {
	entry = filepath.Clean(entry)
	if !reader.Exists(entry) {
		return nil, fmt.Errorf("entry file %s: %w", entry, fs.ErrNotExist)
	}

	prog := &Program{
		entry:   entry,
		byName:  make(map[string]*ast.File),
		imports: make(map[string]map[string]string),
	}
	res := &resolver{reader: reader, configs: make(map[string]*tsconfig)}

	queue := []string{entry}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, done := prog.byName[name]; done {
			continue
		}

		src, err := reader.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		file, err := ParseFile(name, src)
		if err != nil {
			return nil, err
		}
		prog.files = append(prog.files, file)
		prog.byName[name] = file

		resolved := make(map[string]string)
		for _, spec := range moduleSpecifiers(file) {
			if _, seen := resolved[spec]; seen {
				continue
			}
			target, err := res.resolve(name, spec)
			if err != nil {
				return nil, err
			}
			resolved[spec] = target
			if target != "" {
				queue = append(queue, target)
			}
		}
		prog.imports[name] = resolved
	}

	prog.binder = bind(prog)
	return prog, nil
}

func moduleSpecifiers(f *ast.File) []string {
	var out []string
	for _, s := range f.Stmts {
		switch s := s.(type) {
		case *ast.ImportDecl:
			out = append(out, s.Module)
		case *ast.ExportNamed:
			if s.HasFrom {
				out = append(out, s.Module)
			}
		}
	}
	return out
}

// Entry returns the entry file name.
func (p *Program) Entry() string { return p.entry }

// Files returns the loaded files, entry first.
func (p *Program) Files() []*ast.File { return p.files }

// File returns the loaded file with the given name.
func (p *Program) File(name string) (*ast.File, bool) {
	f, ok := p.byName[filepath.Clean(name)]
	return f, ok
}

// ResolveModule returns the file a specifier imported by from resolves to, or "" for
// external modules.
func (p *Program) ResolveModule(from, spec string) string {
	return p.imports[from][spec]
}

// resolver maps import specifiers to file names.
type resolver struct {
	reader  SourceReader
	configs map[string]*tsconfig
}

func (r *resolver) resolve(from, spec string) (string, error) {
	if strings.HasPrefix(spec, ".") || filepath.IsAbs(spec) {
		base := spec
		if !filepath.IsAbs(spec) {
			base = filepath.Join(filepath.Dir(from), spec)
		}
		return r.tryFile(base), nil
	}

	cfg, err := r.configFor(filepath.Dir(from))
	if err != nil || cfg == nil {
		return "", err
	}
	for _, cand := range cfg.candidates(spec) {
		if f := r.tryFile(cand); f != "" {
			return f, nil
		}
	}
	return "", nil
}

// tryFile applies TypeScript's extension and index-file probing to base.
func (r *resolver) tryFile(base string) string {
	base = filepath.Clean(base)
	var cands []string
	switch {
	case strings.HasSuffix(base, ".ts"), strings.HasSuffix(base, ".tsx"):
		cands = append(cands, base)
	case strings.HasSuffix(base, ".js"):
		cands = append(cands, strings.TrimSuffix(base, ".js")+".ts")
	}
	cands = append(cands,
		base+".ts",
		base+".tsx",
		base+".d.ts",
		filepath.Join(base, "index.ts"),
		filepath.Join(base, "index.tsx"),
		filepath.Join(base, "index.d.ts"),
	)
	for _, c := range cands {
		if r.reader.Exists(c) {
			return c
		}
	}
	return ""
}

// configFor finds the nearest tsconfig.json at or above dir.
func (r *resolver) configFor(dir string) (*tsconfig, error) {
	if cfg, ok := r.configs[dir]; ok {
		return cfg, nil
	}
	var cfg *tsconfig
	path := filepath.Join(dir, "tsconfig.json")
	if r.reader.Exists(path) {
		var err error
		cfg, err = loadTSConfig(r.reader, path, make(map[string]bool))
		if err != nil {
			return nil, err
		}
	} else if parent := filepath.Dir(dir); parent != dir {
		var err error
		cfg, err = r.configFor(parent)
		if err != nil {
			return nil, err
		}
	}
	r.configs[dir] = cfg
	return cfg, nil
}
