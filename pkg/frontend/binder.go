package frontend

import (
	"github.com/confts/confts/pkg/ast"
)

// symbol is a name bound in a scope: either a local declaration or an import alias.
type symbol struct {
	decl *ast.Declaration
	imp  *importBinding
}

type importBinding struct {
	file      string
	module    string
	name      string
	namespace bool
}

type scope struct {
	parent *scope
	syms   map[string]*symbol
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, syms: make(map[string]*symbol)}
}

func (s *scope) lookup(name string) *symbol {
	for ; s != nil; s = s.parent {
		if sym, ok := s.syms[name]; ok {
			return sym
		}
	}
	return nil
}

// exportEntry is one name in a module's export table.
type exportEntry struct {
	decl      *ast.Declaration
	local     string
	module    string
	name      string
	namespace bool
}

type moduleInfo struct {
	file    *ast.File
	top     *scope
	exports map[string]*exportEntry
	stars   []string
}

type exportKey struct {
	file string
	name string
}

type binder struct {
	prog       *Program
	modules    map[string]*moduleInfo
	refs       map[*ast.Ident]*symbol
	members    map[*ast.EnumMember]*ast.Declaration
	namespaces map[exportKey]*ast.Declaration
}

func bind(prog *Program) *binder {
	b := &binder{
		prog:       prog,
		modules:    make(map[string]*moduleInfo),
		refs:       make(map[*ast.Ident]*symbol),
		members:    make(map[*ast.EnumMember]*ast.Declaration),
		namespaces: make(map[exportKey]*ast.Declaration),
	}
	for _, f := range prog.files {
		b.declareFile(f)
	}
	for _, f := range prog.files {
		b.walkFile(b.modules[f.Name])
	}
	return b
}

// declareFile fills the top-level scope and export table of f.
func (b *binder) declareFile(f *ast.File) {
	m := &moduleInfo{file: f, top: newScope(nil), exports: make(map[string]*exportEntry)}
	b.modules[f.Name] = m

	define := func(name string, d *ast.Declaration, exported bool) {
		m.top.syms[name] = &symbol{decl: d}
		if exported {
			m.exports[name] = &exportEntry{decl: d}
		}
	}

	for _, s := range f.Stmts {
		switch s := s.(type) {
		case *ast.ImportDecl:
			if s.Default != nil {
				m.top.syms[s.Default.Name] = &symbol{imp: &importBinding{file: f.Name, module: s.Module, name: "default"}}
			}
			if s.Namespace != nil {
				m.top.syms[s.Namespace.Name] = &symbol{imp: &importBinding{file: f.Name, module: s.Module, namespace: true}}
			}
			for _, spec := range s.Named {
				m.top.syms[spec.Local.Name] = &symbol{imp: &importBinding{file: f.Name, module: s.Module, name: spec.Imported}}
			}

		case *ast.VarDecl:
			for _, d := range s.Declarators {
				for _, decl := range varDeclarations(f, s, d) {
					define(decl.Name, decl, s.Exported)
				}
			}

		case *ast.EnumDecl:
			define(s.Name.Name, &ast.Declaration{Kind: ast.DeclEnum, File: f, Name: s.Name.Name, Node: s, Enum: s}, s.Exported)
			for _, mem := range s.Members {
				b.members[mem] = &ast.Declaration{Kind: ast.DeclEnumMember, File: f, Name: mem.Name, Node: mem, Enum: s, Member: mem}
			}

		case *ast.FunctionDecl:
			if s.Name != nil {
				define(s.Name.Name, &ast.Declaration{Kind: ast.DeclFunction, File: f, Name: s.Name.Name, Node: s}, s.Exported)
			}

		case *ast.ClassDecl:
			if s.Name != nil {
				define(s.Name.Name, &ast.Declaration{Kind: ast.DeclClass, File: f, Name: s.Name.Name, Node: s}, s.Exported)
			}

		case *ast.ExportDefault:
			m.exports["default"] = &exportEntry{decl: &ast.Declaration{
				Kind:    ast.DeclVar,
				File:    f,
				Name:    "default",
				Node:    s,
				VarKind: ast.Const,
				Init:    s.Expr,
			}}

		case *ast.ExportNamed:
			switch {
			case s.Star && s.StarAs == "":
				m.stars = append(m.stars, s.Module)
			case s.Star:
				m.exports[s.StarAs] = &exportEntry{module: s.Module, namespace: true}
			default:
				for _, spec := range s.Specs {
					if s.HasFrom {
						m.exports[spec.Exported] = &exportEntry{module: s.Module, name: spec.Local}
					} else {
						m.exports[spec.Exported] = &exportEntry{local: spec.Local}
					}
				}
			}
		}
	}
}

func varDeclarations(f *ast.File, s *ast.VarDecl, d *ast.Declarator) []*ast.Declaration {
	if d.Pattern == nil {
		return []*ast.Declaration{{
			Kind:       ast.DeclVar,
			File:       f,
			Name:       d.Name.Name,
			Node:       d,
			VarKind:    s.Kind,
			Declarator: d,
			Init:       d.Init,
		}}
	}
	out := make([]*ast.Declaration, 0, len(d.Pattern.Elements))
	for _, el := range d.Pattern.Elements {
		out = append(out, &ast.Declaration{
			Kind:       ast.DeclBinding,
			File:       f,
			Name:       el.Name.Name,
			Node:       el,
			VarKind:    s.Kind,
			Declarator: d,
			Init:       d.Init,
			Pattern:    d.Pattern,
			Binding:    el,
		})
	}
	return out
}

// walkFile records what every identifier reference in the file binds to.
func (b *binder) walkFile(m *moduleInfo) {
	for _, s := range m.file.Stmts {
		switch s := s.(type) {
		case *ast.VarDecl:
			for _, d := range s.Declarators {
				b.walkDeclarator(m.top, d)
			}
		case *ast.EnumDecl:
			es := newScope(m.top)
			for _, mem := range s.Members {
				es.syms[mem.Name] = &symbol{decl: b.members[mem]}
			}
			for _, mem := range s.Members {
				if mem.Init != nil {
					b.walkExpr(es, mem.Init)
				}
			}
		case *ast.ExportDefault:
			b.walkExpr(m.top, s.Expr)
		}
	}
}

func (b *binder) walkDeclarator(sc *scope, d *ast.Declarator) {
	if d.Init != nil {
		b.walkExpr(sc, d.Init)
	}
	if d.Pattern != nil {
		for _, el := range d.Pattern.Elements {
			if el.Default != nil {
				b.walkExpr(sc, el.Default)
			}
		}
	}
}

func (b *binder) walkExpr(sc *scope, e ast.Expr) {
	switch e := e.(type) {
	case *ast.Ident:
		if sym := sc.lookup(e.Name); sym != nil {
			b.refs[e] = sym
		}
	case *ast.TemplateLit:
		for _, span := range e.Spans {
			b.walkExpr(sc, span.Expr)
		}
	case *ast.ObjectLit:
		for _, p := range e.Props {
			switch p := p.(type) {
			case *ast.PropertyAssignment:
				if p.Key.Kind == ast.KeyComputed {
					b.walkExpr(sc, p.Key.Expr)
				}
				b.walkExpr(sc, p.Value)
			case *ast.ShorthandProperty:
				b.walkExpr(sc, p.Name)
			case *ast.SpreadProperty:
				b.walkExpr(sc, p.Expr)
			}
		}
	case *ast.ArrayLit:
		for _, el := range e.Elements {
			b.walkExpr(sc, el)
		}
	case *ast.SpreadElement:
		b.walkExpr(sc, e.Expr)
	case *ast.PropertyAccess:
		b.walkExpr(sc, e.Object)
	case *ast.ElementAccess:
		b.walkExpr(sc, e.Object)
		b.walkExpr(sc, e.Index)
	case *ast.Unary:
		b.walkExpr(sc, e.Operand)
	case *ast.Binary:
		b.walkExpr(sc, e.Left)
		b.walkExpr(sc, e.Right)
	case *ast.Conditional:
		b.walkExpr(sc, e.Cond)
		b.walkExpr(sc, e.Then)
		b.walkExpr(sc, e.Else)
	case *ast.Call:
		b.walkExpr(sc, e.Callee)
		for _, a := range e.Args {
			b.walkExpr(sc, a)
		}
	case *ast.New:
		b.walkExpr(sc, e.Callee)
		for _, a := range e.Args {
			b.walkExpr(sc, a)
		}
	case *ast.Paren:
		b.walkExpr(sc, e.Expr)
	case *ast.As:
		b.walkExpr(sc, e.Expr)
	case *ast.Satisfies:
		b.walkExpr(sc, e.Expr)
	case *ast.NonNull:
		b.walkExpr(sc, e.Expr)
	case *ast.Function:
		b.walkFunction(sc, e)
	}
}

func (b *binder) walkFunction(parent *scope, fn *ast.Function) {
	fs := newScope(parent)
	for _, p := range fn.Params {
		if p.Name != nil {
			fs.syms[p.Name.Name] = &symbol{decl: &ast.Declaration{Kind: ast.DeclParam, Name: p.Name.Name, Node: p, Param: p}}
		}
	}
	for _, p := range fn.Params {
		if p.Default != nil {
			b.walkExpr(fs, p.Default)
		}
	}
	if fn.Body != nil {
		b.walkExpr(fs, fn.Body)
	}
	if fn.Block == nil {
		return
	}
	for _, s := range fn.Block.Stmts {
		if vd, ok := s.(*ast.VarDecl); ok {
			for _, d := range vd.Declarators {
				for _, decl := range varDeclarations(nil, vd, d) {
					fs.syms[decl.Name] = &symbol{decl: decl}
				}
			}
		}
	}
	for _, s := range fn.Block.Stmts {
		switch s := s.(type) {
		case *ast.ReturnStmt:
			if s.Expr != nil {
				b.walkExpr(fs, s.Expr)
			}
		case *ast.ExprStmt:
			b.walkExpr(fs, s.Expr)
		case *ast.VarDecl:
			for _, d := range s.Declarators {
				b.walkDeclarator(fs, d)
			}
		}
	}
}

// resolveSymbol follows import aliases to the declaration a symbol stands for.
func (b *binder) resolveSymbol(sym *symbol, visited map[exportKey]bool) *ast.Declaration {
	if sym.decl != nil {
		return sym.decl
	}
	imp := sym.imp
	if imp.namespace {
		return b.namespace(imp.file, imp.module)
	}
	target := b.prog.imports[imp.file][imp.module]
	if target == "" {
		return nil
	}
	return b.resolveExport(target, imp.name, visited)
}

func (b *binder) resolveExport(file, name string, visited map[exportKey]bool) *ast.Declaration {
	key := exportKey{file: file, name: name}
	if visited[key] {
		return nil
	}
	visited[key] = true

	m := b.modules[file]
	if m == nil {
		return nil
	}
	if e, ok := m.exports[name]; ok {
		switch {
		case e.decl != nil:
			return e.decl
		case e.namespace:
			return b.namespace(file, e.module)
		case e.module != "":
			target := b.prog.imports[file][e.module]
			if target == "" {
				return nil
			}
			return b.resolveExport(target, e.name, visited)
		default:
			sym := m.top.syms[e.local]
			if sym == nil {
				return nil
			}
			return b.resolveSymbol(sym, visited)
		}
	}
	if name == "default" {
		return nil
	}
	for _, spec := range m.stars {
		target := b.prog.imports[file][spec]
		if target == "" {
			continue
		}
		if d := b.resolveExport(target, name, visited); d != nil {
			return d
		}
	}
	return nil
}

// namespace returns the shared declaration for `import * as ns from spec` in file.
func (b *binder) namespace(file, spec string) *ast.Declaration {
	key := exportKey{file: file, name: spec}
	if d, ok := b.namespaces[key]; ok {
		return d
	}
	d := &ast.Declaration{Kind: ast.DeclNamespace, Name: spec, ModuleName: spec}
	if target := b.prog.imports[file][spec]; target != "" {
		d.Module = b.prog.byName[target]
	}
	b.namespaces[key] = d
	return d
}

func (b *binder) enumMember(enum *ast.EnumDecl, name string) *ast.Declaration {
	for _, m := range enum.Members {
		if m.Name == name {
			return b.members[m]
		}
	}
	return nil
}

// ResolveIdent returns the declaration an identifier reference refers to, following
// imports and re-exports. It returns nil for unresolved names.
func (p *Program) ResolveIdent(id *ast.Ident) *ast.Declaration {
	sym := p.binder.refs[id]
	if sym == nil {
		return nil
	}
	return p.binder.resolveSymbol(sym, make(map[exportKey]bool))
}

// ResolveMember resolves `Enum.Member`, `ns.Name` and `ns.Enum.Member`.
func (p *Program) ResolveMember(pa *ast.PropertyAccess) *ast.Declaration {
	var base *ast.Declaration
	switch obj := pa.Object.(type) {
	case *ast.Ident:
		base = p.ResolveIdent(obj)
	case *ast.PropertyAccess:
		base = p.ResolveMember(obj)
	}
	if base == nil {
		return nil
	}
	switch base.Kind {
	case ast.DeclEnum:
		return p.binder.enumMember(base.Enum, pa.Name.Name)
	case ast.DeclNamespace:
		if base.Module == nil {
			return nil
		}
		return p.binder.resolveExport(base.Module.Name, pa.Name.Name, make(map[exportKey]bool))
	}
	return nil
}
