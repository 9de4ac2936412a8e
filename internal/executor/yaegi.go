package executor

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// allowedImports are the packages a snippet may import. Anything touching the
// filesystem, network, processes or unsafe memory is left out.
var allowedImports = map[string]bool{
	"bytes":           true,
	"encoding/base64": true,
	"encoding/json":   true,
	"errors":          true,
	"fmt":             true,
	"math":            true,
	"math/rand":       true,
	"regexp":          true,
	"slices":          true,
	"sort":            true,
	"strconv":         true,
	"strings":         true,
	"time":            true,
	"unicode":         true,
}

// Yaegi interprets Go snippets in process. Output written to stdout and
// stderr is captured and returned.
type Yaegi struct {
	timeout time.Duration
}

// NewYaegi creates an interpreter executor. A zero timeout relies on the
// caller's context alone.
func NewYaegi(timeout time.Duration) *Yaegi {
	return &Yaegi{timeout: timeout}
}

// Execute runs a Go program or a sequence of Go statements.
func (y *Yaegi) Execute(ctx context.Context, req Request) (Result, error) {
	if lang := strings.ToLower(req.Language); lang != "go" && lang != "golang" {
		return Result{}, fmt.Errorf("%w: %q (only go)", ErrUnsupportedLanguage, req.Language)
	}
	program, err := wrapProgram(req.Code)
	if err != nil {
		return Result{Error: err.Error()}, nil
	}
	if err := validateImports(program); err != nil {
		return Result{Error: err.Error()}, nil
	}

	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	out := &syncBuffer{}
	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(sandboxSymbols()); err != nil {
		return Result{}, fmt.Errorf("load stdlib: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, program); err != nil {
		return Result{Output: out.String(), Error: err.Error()}, nil
	}

	if _, err := i.EvalWithContext(ctx, "main."+entryPoint+"()"); err != nil {
		if ctx.Err() != nil {
			return Result{Output: out.String(), Error: fmt.Sprintf("execution timed out: %v", ctx.Err())}, nil
		}
		return Result{Output: out.String(), Error: err.Error()}, nil
	}
	return Result{Output: out.String()}, nil
}

const entryPoint = "victorRun"

// wrapProgram turns a snippet into a main package exposing entryPoint. A
// complete program has its main function renamed; bare statements are
// moved into a new function after their imports.
func wrapProgram(code string) (string, error) {
	if hasPackageClause(code) {
		if !strings.Contains(code, "func main()") {
			return "", fmt.Errorf("program has no main function")
		}
		return strings.Replace(code, "func main()", "func "+entryPoint+"()", 1), nil
	}

	var head, body strings.Builder
	head.WriteString("package main\n\n")
	inBlock := false
	for line := range strings.Lines(code) {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = !strings.Contains(trimmed, ")")
			head.WriteString(line)
		case inBlock:
			head.WriteString(line)
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
			}
		case strings.HasPrefix(trimmed, "import "):
			head.WriteString(line)
		default:
			body.WriteString(line)
		}
	}
	return fmt.Sprintf("%s\nfunc %s() {\n%s\n}\n", head.String(), entryPoint, body.String()), nil
}

func hasPackageClause(code string) bool {
	for line := range strings.Lines(code) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return strings.HasPrefix(trimmed, "package ")
	}
	return false
}

// sandboxSymbols is the subset of the interpreter's stdlib bindings whose
// packages are on the allow-list. Anything else fails to resolve.
func sandboxSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		if key == "." || allowedImports[path.Dir(key)] {
			out[key] = syms
		}
	}
	return out
}

// validateImports checks every import of a wrapped program against the
// allow-list.
func validateImports(program string) error {
	pkgs, err := imports(program)
	if err != nil {
		return err
	}
	var forbidden []string
	for _, pkg := range pkgs {
		if !allowedImports[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		slices.Sort(forbidden)
		return fmt.Errorf("forbidden imports: %s", strings.Join(slices.Compact(forbidden), ", "))
	}
	return nil
}

// imports returns the import paths declared by program.
func imports(program string) ([]string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "snippet.go", program, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("parse imports: %w", err)
	}
	out := make([]string, 0, len(f.Imports))
	for _, spec := range f.Imports {
		pkg, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return nil, fmt.Errorf("parse imports: %w", err)
		}
		out = append(out, pkg)
	}
	return out, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
