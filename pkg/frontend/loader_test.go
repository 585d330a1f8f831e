package frontend

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/confts/confts/pkg/ast"
)

func loadMemory(t *testing.T, entry string, files map[string]string) *Program {
	t.Helper()
	prog, err := Load(NewMemoryReader(files), entry)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return prog
}

// defaultIdent returns the identifier exported as default by the entry file.
func defaultIdent(t *testing.T, prog *Program) *ast.Ident {
	t.Helper()
	def := prog.Files()[0].DefaultExport()
	if def == nil {
		t.Fatal("missing default export")
	}
	id, ok := def.Expr.(*ast.Ident)
	if !ok {
		t.Fatalf("default export is %T, want identifier", def.Expr)
	}
	return id
}

func TestLoadFollowsImports(t *testing.T) {
	prog := loadMemory(t, "main.ts", map[string]string{
		"main.ts":        "import { a } from './lib'\nimport { env } from '@conf-ts/macro'\nexport default a",
		"lib/index.ts":   "export { b as a } from './values'",
		"lib/values.ts":  "export const b = 1",
		"unreachable.ts": "export const c = 2",
	})

	var names []string
	for _, f := range prog.Files() {
		names = append(names, f.Name)
	}
	want := []string{"main.ts", "lib/index.ts", "lib/values.ts"}
	if len(names) != len(want) {
		t.Fatalf("files = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("file %d = %s, want %s", i, names[i], want[i])
		}
	}
	if got := prog.ResolveModule("main.ts", "@conf-ts/macro"); got != "" {
		t.Errorf("macro module resolved to %q, want external", got)
	}

	d := prog.ResolveIdent(defaultIdent(t, prog))
	if d == nil || d.Name != "b" || d.File.Name != "lib/values.ts" {
		t.Fatalf("ResolveIdent = %+v, want b in lib/values.ts", d)
	}
}

func TestLoadMissingEntry(t *testing.T) {
	_, err := Load(NewMemoryReader(nil), "nope.ts")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadSyntaxErrorNamesFile(t *testing.T) {
	_, err := Load(NewMemoryReader(map[string]string{
		"main.ts": "import { x } from './bad'\nexport default x",
		"bad.ts":  "export const x = [1,,2]",
	}), "main.ts")
	var se *SyntaxError
	if !errors.As(err, &se) || se.File != "bad.ts" {
		t.Fatalf("err = %v, want syntax error in bad.ts", err)
	}
}

func TestResolveThroughStarAndNamespace(t *testing.T) {
	prog := loadMemory(t, "main.ts", map[string]string{
		"main.ts": `import * as all from './barrel'
import { Color } from './barrel'
const pick = all.Color.Red
const other = Color.Green
const ns = all.answer
export default pick`,
		"barrel.ts": "export * from './colors'\nexport * from './answer'",
		"colors.ts": "export enum Color { Red = 'r', Green = 'g' }",
		"answer.ts": "export const answer = 42",
	})
	f := prog.Files()[0]

	inits := map[string]ast.Expr{}
	for _, s := range f.Stmts {
		if vd, ok := s.(*ast.VarDecl); ok {
			inits[vd.Declarators[0].Name.Name] = vd.Declarators[0].Init
		}
	}

	red := prog.ResolveMember(inits["pick"].(*ast.PropertyAccess))
	if red == nil || red.Kind != ast.DeclEnumMember || red.QualifiedName() != "Color.Red" {
		t.Errorf("all.Color.Red resolved to %+v", red)
	}
	green := prog.ResolveMember(inits["other"].(*ast.PropertyAccess))
	if green == nil || green.QualifiedName() != "Color.Green" || green.File.Name != "colors.ts" {
		t.Errorf("Color.Green resolved to %+v", green)
	}
	answer := prog.ResolveMember(inits["ns"].(*ast.PropertyAccess))
	if answer == nil || answer.Kind != ast.DeclVar || answer.Name != "answer" {
		t.Errorf("all.answer resolved to %+v", answer)
	}
}

func TestResolveImportCycle(t *testing.T) {
	prog := loadMemory(t, "a.ts", map[string]string{
		"a.ts": "import { x } from './b'\nexport { x as y }\nexport default x",
		"b.ts": "import { y } from './a'\nexport { y as x }",
	})
	if d := prog.ResolveIdent(defaultIdent(t, prog)); d != nil {
		t.Errorf("cyclic alias resolved to %+v, want nil", d)
	}
}

func TestResolveDefaultImport(t *testing.T) {
	prog := loadMemory(t, "main.ts", map[string]string{
		"main.ts": "import base from './base'\nexport default base",
		"base.ts": "export default { port: 80 }",
	})
	d := prog.ResolveIdent(defaultIdent(t, prog))
	if d == nil || d.Name != "default" || d.VarKind != ast.Const {
		t.Fatalf("default import resolved to %+v", d)
	}
	if _, ok := d.Init.(*ast.ObjectLit); !ok {
		t.Errorf("init = %T, want object literal", d.Init)
	}
}

func TestEnumInitializerScope(t *testing.T) {
	prog := loadMemory(t, "main.ts", map[string]string{
		"main.ts": "enum E { A = 1, B = A + 1 }\nexport default E.B",
	})
	enum := prog.Files()[0].Enums()[0]
	ref := enum.Members[1].Init.(*ast.Binary).Left.(*ast.Ident)
	d := prog.ResolveIdent(ref)
	if d == nil || d.Kind != ast.DeclEnumMember || d.QualifiedName() != "E.A" {
		t.Errorf("A inside enum resolved to %+v", d)
	}
}

func TestTSConfigPaths(t *testing.T) {
	prog := loadMemory(t, "app/main.ts", map[string]string{
		"tsconfig.json": `{
  // path aliases
  "extends": "./tsconfig.base.json",
  "compilerOptions": {
    "paths": { "@shared/*": ["shared/*"], },
  },
}`,
		"tsconfig.base.json": `{ "compilerOptions": { "baseUrl": "." } }`,
		"app/main.ts":        "import { port } from '@shared/net'\nimport { name } from 'lib/name'\nexport default port",
		"shared/net.ts":      "export const port = 8080",
		"lib/name.ts":        "export const name = 'x'",
	})
	if got := prog.ResolveModule("app/main.ts", "@shared/net"); got != "shared/net.ts" {
		t.Errorf("@shared/net resolved to %q", got)
	}
	if got := prog.ResolveModule("app/main.ts", "lib/name"); got != "lib/name.ts" {
		t.Errorf("lib/name resolved to %q", got)
	}
}

func TestLoadTSConfig(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		paths   []string
		wantErr bool
	}{
		{
			name:  "comments and trailing commas",
			src:   `{ /* c */ "compilerOptions": { "paths": { "a//b/*": ["x/*",], }, }, }`,
			paths: []string{"a//b/*"},
		},
		{
			name:    "malformed",
			src:     `{ "compilerOptions": `,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewMemoryReader(map[string]string{"tsconfig.json": tt.src})
			cfg, err := loadTSConfig(reader, "tsconfig.json", map[string]bool{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadTSConfig failed: %v", err)
			}
			var got []string
			for p := range cfg.paths {
				got = append(got, p)
			}
			if len(got) != len(tt.paths) || got[0] != tt.paths[0] {
				t.Errorf("paths = %v, want %v", got, tt.paths)
			}
		})
	}
}

func TestOSReader(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "app.conf.ts")
	if err := os.WriteFile(entry, []byte("import { v } from './v'\nexport default v"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "v.ts"), []byte("export const v = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	prog, err := Load(OSReader{}, entry)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(prog.Files()) != 2 {
		t.Errorf("files = %d, want 2", len(prog.Files()))
	}
	if _, ok := prog.File(filepath.Join(dir, "v.ts")); !ok {
		t.Error("v.ts not loaded")
	}
}

func TestIsNullish(t *testing.T) {
	prog := loadMemory(t, "main.ts", map[string]string{
		"main.ts": `const n = null
const u: undefined = undefined
const maybe: string | null = null
const s = 'x'
const both: null | undefined = null
export default [
  null,
  undefined,
  void 0,
  n,
  u,
  maybe,
  s,
  both,
  (n),
  s as null,
  true ? null : undefined,
  true ? null : 1,
]`,
	})
	arr := prog.Files()[0].DefaultExport().Expr.(*ast.ArrayLit)
	want := []bool{true, true, true, true, true, false, false, true, true, true, true, false}
	if len(arr.Elements) != len(want) {
		t.Fatalf("elements = %d, want %d", len(arr.Elements), len(want))
	}
	for i, e := range arr.Elements {
		if got := prog.IsNullish(e); got != want[i] {
			t.Errorf("IsNullish(%s) = %v, want %v", prog.Files()[0].Text(e), got, want[i])
		}
	}
}
