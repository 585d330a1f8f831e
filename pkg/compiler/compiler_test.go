package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/confts/confts/pkg/frontend"
)

const macroImport = "import { String, Number, Boolean, arrayMap, arrayFilter, env } from '@conf-ts/macro'\n"

func compileFiles(t *testing.T, files map[string]string, opts Options) (*Result, error) {
	t.Helper()
	prog, err := frontend.Load(frontend.NewMemoryReader(files), "main.ts")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return Compile(prog, "main.ts", opts)
}

func compileJSON(t *testing.T, files map[string]string, opts Options) string {
	t.Helper()
	res, err := compileFiles(t, files, opts)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	out, err := res.Output.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	return string(out)
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "literals keep key order",
			src:  "export default { b: 1, a: 'x', c: [true, null], d: `v${1 + 1}` }",
			want: `{"b":1,"a":"x","c":[true,null],"d":"v2"}`,
		},
		{
			name: "integer-like keys keep insertion order",
			src:  `export default { "2": 1, "1": 2, b: 3, 1.50: 'x', 0x10: 'y' }`,
			want: `{"2":1,"1":2,"b":3,"1.5":"x","16":"y"}`,
		},
		{
			name: "enum ordinals",
			src:  "enum E { A, B = 5, C }\nexport default [E.A, E.B, E.C]",
			want: `[0,5,6]`,
		},
		{
			name: "string member leaves the ordinal",
			src:  "enum E { A, B = 'x', C }\nexport default [E.A, E.B, E.C]",
			want: `[0,"x",1]`,
		},
		{
			name: "enum member refers to an earlier member",
			src:  "enum E { A = 1, B = A + 1 }\nexport default E.B",
			want: `2`,
		},
		{
			name: "object spread",
			src:  "const base = { a: 1, b: 2 }\nexport default { ...base, c: 3 }",
			want: `{"a":1,"b":2,"c":3}`,
		},
		{
			name: "later key wins",
			src:  "export default { ...{ a: 1 }, a: 2 }",
			want: `{"a":2}`,
		},
		{
			name: "later spread wins",
			src:  "export default { ...{ a: 1 }, ...{ a: 2 } }",
			want: `{"a":2}`,
		},
		{
			name: "untaken branch is not evaluated",
			src:  "export default [true ? 1 : nope, false ? nope : 2]",
			want: `[1,2]`,
		},
		{
			name: "array spread",
			src:  "const xs = [1, 2]\nexport default [0, ...xs, ...'ab']",
			want: `[0,1,2,"a","b"]`,
		},
		{
			name: "destructuring",
			src:  "const { a, b: renamed, d = 4, ...rest } = { a: 1, b: 2, c: 3 }\nexport default { a, renamed, d, rest }",
			want: `{"a":1,"renamed":2,"d":4,"rest":{"c":3}}`,
		},
		{
			name: "property access",
			src:  "const cfg = { server: { port: 80 }, list: [1, 2, 3] }\nexport default { port: cfg.server.port, n: cfg.list.length }",
			want: `{"port":80,"n":3}`,
		},
		{
			name: "computed keys",
			src:  "const k = 'key'\nexport default { [k]: 1, [1 + 1]: 2 }",
			want: `{"key":1,"2":2}`,
		},
		{
			name: "operators",
			src:  "export default [1 + '1', 10 % 3, 2 > 1, 1 == '1', 1 === '1', -'3', !0, ~1, true ? 'y' : 'n']",
			want: `["11",1,true,true,false,-3,true,-2,"y"]`,
		},
		{
			name: "type assertions are transparent",
			src:  "export default ({ a: 1 } as const) satisfies object",
			want: `{"a":1}`,
		},
		{
			name: "non-null assertion",
			src:  "const v: number | undefined = 42\nexport default v!",
			want: `42`,
		},
		{
			name: "undefined members are dropped",
			src:  "const { missing } = { present: 1 }\nexport default { missing, present: 1 }",
			want: `{"present":1}`,
		},
		{
			name: "export assignment",
			src:  "export = { a: 1 }",
			want: `{"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compileJSON(t, map[string]string{"main.ts": tt.src}, Options{})
			if got != tt.want {
				t.Errorf("Compile = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCompileMultipleFiles(t *testing.T) {
	files := map[string]string{
		"main.ts": `import * as lib from './lib'
import { Color } from './lib'
import { a } from './a'
import { unused } from './c'
export default { port: lib.port, red: lib.Color.Red, green: Color.Green, a }`,
		"lib.ts": "export const port = 8080\nexport enum Color { Red = 'red', Green = 'green' }",
		"a.ts":   "import { b } from './b'\nexport const a = b + 1",
		"b.ts":   "export const b = 1",
		"c.ts":   "export const unused = 0",
	}
	res, err := compileFiles(t, files, Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	out, _ := res.Output.MarshalJSON()
	if want := `{"port":8080,"red":"red","green":"green","a":2}`; string(out) != want {
		t.Errorf("Compile = %s, want %s", out, want)
	}

	want := []string{"a.ts", "b.ts", "lib.ts", "main.ts"}
	if strings.Join(res.Dependencies, ",") != strings.Join(want, ",") {
		t.Errorf("Dependencies = %v, want %v", res.Dependencies, want)
	}
	if res.SessionID == "" {
		t.Error("expected a session id")
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	files := map[string]string{
		"main.ts": "enum Tier { Free, Pro = 10 }\nconst limits = { tier: Tier.Pro, 'max-users': 5 * 2 }\nexport default { ...limits, tags: ['a', `b${Tier.Free}`], nested: { z: 1, a: null } }",
	}
	first := compileJSON(t, files, Options{})
	second := compileJSON(t, files, Options{})
	if first != second {
		t.Fatalf("outputs differ:\n%s\n%s", first, second)
	}

	// Compiling the output as a literal yields the same output.
	again := compileJSON(t, map[string]string{"main.ts": "export default " + first}, Options{})
	if again != first {
		t.Errorf("round trip = %s, want %s", again, first)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		macro   bool
		kind    ErrorKind
		message string
		at      string
	}{
		{
			name:    "let binding",
			src:     "let x = 1\nexport default x",
			kind:    ErrNonConstBinding,
			message: `Failed to evaluate variable "x". Only 'const' declarations are supported, but it was declared with 'let'.`,
			at:      "2:16",
		},
		{
			name:    "missing default export",
			src:     "export const a = 1",
			kind:    ErrMissingDefaultExport,
			message: "No default export found in the entry file: main.ts",
			at:      "1:1",
		},
		{
			name:    "cyclic constants",
			src:     "const a = b\nconst b = a\nexport default a",
			kind:    ErrCyclicReference,
			message: `Cyclic reference detected while evaluating "a"`,
			at:      "2:11",
		},
		{
			name:    "enum member refers to a later member",
			src:     "enum E { A = B * 2, B = 4 }\nexport default E.A",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported variable type for identifier: B",
			at:      "1:14",
		},
		{
			name:    "function value",
			src:     "export default { f: () => 1 }",
			kind:    ErrUnsupportedType,
			message: "Unsupported type: Function",
			at:      "1:21",
		},
		{
			name:    "date",
			src:     "export default new Date()",
			kind:    ErrUnsupportedType,
			message: "Unsupported type: Date",
			at:      "1:16",
		},
		{
			name:    "regexp",
			src:     "export default /a+/",
			kind:    ErrUnsupportedType,
			message: "Unsupported type: RegExp",
			at:      "1:16",
		},
		{
			name:    "other new expression",
			src:     "export default new Map()",
			kind:    ErrUnsupportedSyntax,
			message: `Unsupported "new" expression: Map`,
		},
		{
			name:    "logical and",
			src:     "export default true && false",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported binary operator: AmpersandAmpersandToken",
			at:      "1:16",
		},
		{
			name:    "nullish coalescing",
			src:     "export default null ?? 1",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported binary operator: QuestionQuestionToken",
		},
		{
			name:    "typeof",
			src:     "const a = 1\nexport default typeof a",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported syntax kind: TypeOfExpression",
			at:      "2:16",
		},
		{
			name:    "prefix increment",
			src:     "const a = 1\nexport default ++a",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported unary operator: PlusPlusToken",
		},
		{
			name:    "postfix increment",
			src:     "const a = 1\nexport default a++",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported syntax kind: PostfixUnaryExpression",
		},
		{
			name:    "element access",
			src:     "const a = [1]\nexport default a[0]",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported syntax kind: ElementAccessExpression",
			at:      "2:16",
		},
		{
			name:    "unknown identifier",
			src:     "export default missing",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported variable type for identifier: missing",
		},
		{
			name:    "undefined identifier",
			src:     "export default undefined",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported variable type for identifier: undefined",
		},
		{
			name:    "macro function outside macro mode",
			src:     "export default String(1)",
			kind:    ErrMacroOnlyFunctionMisuse,
			message: `Function "String" is only allowed in macro mode`,
		},
		{
			name:    "arbitrary call",
			src:     "export default foo(1)",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported call expression: foo(1)",
		},
		{
			name:    "unknown enum member",
			src:     "enum E { A }\nexport default E.B",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported property access expression: E.B",
			at:      "2:16",
		},
		{
			name:    "missing object key",
			src:     "const o = { a: 1 }\nexport default o.b",
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported property access expression: o.b",
		},
		{
			name:    "shorthand of a function",
			src:     "function f() {}\nexport default { f }",
			kind:    ErrUnsupportedSyntax,
			message: "Could not resolve shorthand property 'f' because its declaration is not a variable or has no initializer.",
		},
		{
			name:    "statically nullish non-null assertion",
			src:     "const u = undefined\nexport default u!",
			kind:    ErrNonNullAssertionFailure,
			message: "Non-null assertion applied to value typed as 'null' or 'undefined'",
			at:      "2:16",
		},
		{
			name:    "failed non-null assertion",
			src:     "const n: string | null = null\nexport default n!",
			kind:    ErrNonNullAssertionFailure,
			message: "Non-null assertion failed: value is null or undefined",
		},
		{
			name:    "spread of a number",
			src:     "export default [...1]",
			kind:    ErrUnsupportedType,
		},
		{
			name:    "env argument not a string",
			src:     macroImport + "export default env(1)",
			macro:   true,
			kind:    ErrEnvArgumentNotString,
			message: "env macro argument must be a string",
			at:      "2:20",
		},
		{
			name:    "type cast without import",
			src:     "export default String(1)",
			macro:   true,
			kind:    ErrMacroImportRequired,
			message: "Type casting function 'String' must be imported from '@conf-ts/macro' to use in macro mode",
		},
		{
			name:    "array macro without import",
			src:     "export default arrayMap([1], x => x)",
			macro:   true,
			kind:    ErrMacroImportRequired,
			message: "Macro function 'arrayMap' must be imported from '@conf-ts/macro' to use in macro mode",
		},
		{
			name:    "method call in callback",
			src:     macroImport + "export default arrayMap([{ helper: 1 }], x => x.helper())",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "arrayMap: callback can only use its parameter and literals",
			at:      "2:47",
		},
		{
			name:    "outer constant in callback",
			src:     macroImport + "const k = 2\nexport default arrayMap([1], x => x * k)",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "arrayMap: callback can only use its parameter and literals",
		},
		{
			name:    "callback is not an arrow",
			src:     macroImport + "export default arrayFilter([1], 1)",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "arrayFilter: callback must be an arrow function",
		},
		{
			name:    "callback with two parameters",
			src:     macroImport + "export default arrayMap([1], (a, b) => a)",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "arrayMap: callback must have exactly one parameter",
		},
		{
			name:    "callback with statements",
			src:     macroImport + "export default arrayMap([1], x => { const y = x; return y })",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "arrayMap: callback body must be a single return statement",
		},
		{
			name:    "array macro over a string",
			src:     macroImport + "export default arrayMap('ab', x => x)",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "arrayMap: first argument must be an array",
		},
		{
			name:    "namespace import of the macro module",
			src:     "import * as m from '@conf-ts/macro'\nexport default String(1)",
			macro:   true,
			kind:    ErrMacroImportRequired,
			message: "Type casting function 'String' must be imported from '@conf-ts/macro' to use in macro mode",
		},
		{
			name:    "call through a macro namespace",
			src:     "import * as m from '@conf-ts/macro'\nexport default m.String(1)",
			macro:   true,
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported call expression in macro mode: m.String(1)",
		},
		{
			name:    "default import of the macro module",
			src:     "import String from '@conf-ts/macro'\nexport default String(1)",
			macro:   true,
			kind:    ErrMacroImportRequired,
			message: "Type casting function 'String' must be imported from '@conf-ts/macro' to use in macro mode",
		},
		{
			name:    "call through a default macro import",
			src:     "import S from '@conf-ts/macro'\nexport default S(1)",
			macro:   true,
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported call expression in macro mode: S(1)",
		},
		{
			name:    "macro with wrong arity",
			src:     macroImport + "export default arrayMap([1])",
			macro:   true,
			kind:    ErrMacroArityOrShapeViolation,
			message: "Unsupported call expression in macro mode: arrayMap([1])",
		},
		{
			name:    "unknown call in macro mode",
			src:     macroImport + "export default foo()",
			macro:   true,
			kind:    ErrUnsupportedSyntax,
			message: "Unsupported call expression in macro mode: foo()",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileFiles(t, map[string]string{"main.ts": tt.src}, Options{Macro: tt.macro})
			if err == nil {
				t.Fatal("Compile succeeded, want error")
			}
			var ce *ConfError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not a *ConfError: %v", err, err)
			}
			if ce.Kind != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", ce.Kind, tt.kind, err)
			}
			if tt.message != "" && ce.Message != tt.message {
				t.Errorf("message = %q, want %q", ce.Message, tt.message)
			}
			if ce.File != "main.ts" {
				t.Errorf("file = %q, want main.ts", ce.File)
			}
			if at := fmt.Sprintf("%d:%d", ce.Line, ce.Character); tt.at != "" && at != tt.at {
				t.Errorf("position = %s, want %s", at, tt.at)
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("IsKind(err, %s) = false", tt.kind)
			}
		})
	}
}

func TestConfErrorFormat(t *testing.T) {
	_, err := compileFiles(t, map[string]string{"main.ts": "let x = 1\nexport default x"}, Options{})
	want := "NonConstBinding: Failed to evaluate variable \"x\". Only 'const' declarations are supported, but it was declared with 'let'.\n    at main.ts:2:16"
	if err == nil || err.Error() != want {
		t.Errorf("Error() = %q, want %q", err, want)
	}
	if !errors.Is(err, &ConfError{Kind: ErrNonConstBinding}) {
		t.Error("errors.Is should match on kind")
	}
	if (&ConfError{Kind: ErrUnsupportedSyntax, Line: 1, Character: 1}).Error() != "UnsupportedSyntax: \n    at unknown:1:1" {
		t.Error("empty file should render as unknown")
	}
}

func TestCompileMacros(t *testing.T) {
	t.Setenv("CONFTS_TEST_HOST", "example.com")

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arrayMap", "export default arrayMap([1, 2, 3], x => x * 2)", `[2,4,6]`},
		{"arrayFilter", "export default arrayFilter([1, 2, 3, 4], n => n % 2 === 0)", `[2,4]`},
		{"block body", "export default arrayMap([{ name: 'a' }], item => { return item.name })", `["a"]`},
		{"shorthand of parameter", "export default arrayMap([1], x => ({ x, double: x * 2 }))", `[{"x":1,"double":2}]`},
		{"nested callback", "export default arrayMap([[1, 2], [3]], xs => arrayFilter(xs, y => y > 1))", `[[2],[3]]`},
		{"type casts", "export default [String(1), Number('2'), Boolean(''), String(true)]", `["1",2,false,"true"]`},
		{"nested macro argument", "export default String(arrayMap([1], x => x + 1))", `"2"`},
		{"env", "export default { host: env('CONFTS_TEST_HOST'), missing: env('CONFTS_TEST_SURELY_UNSET') }", `{"host":"example.com"}`},
		{"literals still fold", "export default { a: 1 + 1 }", `{"a":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compileJSON(t, map[string]string{"main.ts": macroImport + tt.src}, Options{Macro: true})
			if got != tt.want {
				t.Errorf("Compile = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStringMacroModes(t *testing.T) {
	imported := map[string]string{"main.ts": "import { String } from '@conf-ts/macro'\nexport default String(42)"}
	bare := map[string]string{"main.ts": "export default String(42)"}

	if _, err := compileFiles(t, imported, Options{}); !IsKind(err, ErrMacroOnlyFunctionMisuse) {
		t.Errorf("normal mode: err = %v, want MacroOnlyFunctionMisuse", err)
	}
	if _, err := compileFiles(t, bare, Options{Macro: true}); !IsKind(err, ErrMacroImportRequired) {
		t.Errorf("macro mode without import: err = %v, want MacroImportRequired", err)
	}
	if got := compileJSON(t, imported, Options{Macro: true}); got != `"42"` {
		t.Errorf("macro mode: got %s, want \"42\"", got)
	}
}

func TestMacroImportsArePerFile(t *testing.T) {
	files := map[string]string{
		"main.ts": "import { env } from '@conf-ts/macro'\nimport { host } from './host'\nexport default host",
		"host.ts": "export const host = env('HOME')",
	}
	_, err := compileFiles(t, files, Options{Macro: true})
	var ce *ConfError
	if !errors.As(err, &ce) || ce.Kind != ErrMacroImportRequired || ce.File != "host.ts" {
		t.Fatalf("err = %v, want MacroImportRequired in host.ts", err)
	}
}

func TestCustomMacroModule(t *testing.T) {
	files := map[string]string{"main.ts": "import { env } from 'my-macros'\nexport default env('CONFTS_CUSTOM')"}
	opts := Options{
		Macro:       true,
		MacroModule: "my-macros",
		LookupEnv: func(name string) (string, bool) {
			return "v-" + name, true
		},
	}
	if got := compileJSON(t, files, opts); got != `"v-CONFTS_CUSTOM"` {
		t.Errorf("Compile = %s", got)
	}

	_, err := compileFiles(t, map[string]string{"main.ts": "export default env('X')"}, opts)
	if err == nil || !strings.Contains(err.Error(), "must be imported from 'my-macros'") {
		t.Errorf("err = %v, want mention of my-macros", err)
	}
}

func TestEnumAcrossFiles(t *testing.T) {
	files := map[string]string{
		"main.ts":   "import { Level } from './levels'\nexport default { low: Level.Low, high: Level.High }",
		"levels.ts": "import { Base } from './base'\nexport enum Level { Low = Base.Start, High }",
		"base.ts":   "export enum Base { Start = 10 }",
	}
	if got := compileJSON(t, files, Options{}); got != `{"low":10,"high":11}` {
		t.Errorf("Compile = %s", got)
	}
}
