package provenance

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"runtime"
)

// SourceProvider returns the source text of a function on the call stack.
//
// skip counts frames above the CallerSource call: 0 is the function calling
// CallerSource, 1 its caller, and so on. An empty string means the source
// is unavailable.
type SourceProvider interface {
	CallerSource(skip int) string
}

// RuntimeSource locates the caller with runtime.Caller and reads the
// enclosing top-level function from the Go source file on disk.
//
// Binaries built with -trimpath, or run where the source tree is absent,
// yield "".
type RuntimeSource struct{}

func (RuntimeSource) CallerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return FunctionSource(file, line)
}

// NoSource never returns source text.
type NoSource struct{}

func (NoSource) CallerSource(int) string { return "" }

// FunctionSource returns the text of the outermost function declaration in
// file that spans line. Closures are returned as part of the function that
// contains them. Returns "" if the file cannot be read or parsed, or no
// declaration spans line.
func FunctionSource(file string, line int) string {
	src, err := os.ReadFile(file)
	if err != nil {
		return ""
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, src, parser.SkipObjectResolution)
	if err != nil {
		return ""
	}

	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start := fset.Position(fn.Pos())
		end := fset.Position(fn.End())
		if line < start.Line || line > end.Line {
			continue
		}
		if start.Offset < 0 || end.Offset > len(src) || start.Offset >= end.Offset {
			return ""
		}
		return string(src[start.Offset:end.Offset])
	}
	return ""
}
