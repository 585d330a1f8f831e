package compiler

import "github.com/confts/confts/pkg/ast"

// collectMacroImports records the local names a file imports from the macro module.
// Outside macro mode every file gets an empty set.
func (s *Session) collectMacroImports(f *ast.File) {
	names := make(map[string]bool)
	s.macroImports[f.Name] = names
	if !s.opts.Macro {
		return
	}
	for _, imp := range f.Imports() {
		if imp.Module != s.opts.MacroModule || imp.TypeOnly {
			continue
		}
		for _, spec := range imp.Named {
			if spec.TypeOnly {
				continue
			}
			names[spec.Local.Name] = true
		}
	}
	if len(names) > 0 {
		s.logger.Debug().Str("file", f.Name).Int("macros", len(names)).Msg("Collected macro imports")
	}
}
