package internalcheck

import (
	"fmt"
	"go/ast"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

var sensitiveNames = map[string]struct{}{
	"token":    {},
	"hftoken":  {},
	"hf_token": {},
	"password": {},
	"secret":   {},
	"apikey":   {},
	"api_key":  {},
}

// Credential values must never reach a log call; sites that want to note
// their presence use logging.Redacted or a boolean flag instead.
func TestNoCredentialValuesInLogCalls(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedFiles | packages.NeedName,
	}

	pkgs, err := packages.Load(cfg,
		"github.com/carpit680/openbot-go/internal/...",
		"github.com/carpit680/openbot-go/pkg/openbot/...",
	)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var findings []string

	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			fset := pkg.Fset
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				selector, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				switch selector.Sel.Name {
				case "Debug", "Info", "Warn", "Error":
				default:
					return true
				}

				for _, arg := range call.Args {
					if name, bad := sensitiveExpr(arg); bad {
						pos := fset.Position(arg.Pos())
						findings = append(findings, fmt.Sprintf("%s: %q looks like a credential value in a log call", pos, name))
					}
				}
				return true
			})
		}
	}

	if len(findings) > 0 {
		t.Fatalf("credential logging policy violation:\n%s", strings.Join(findings, "\n"))
	}
}

// sensitiveExpr reports identifiers, field selections, and Token() getter
// calls whose name marks the value as a credential.
func sensitiveExpr(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.Ident:
		if _, bad := sensitiveNames[strings.ToLower(e.Name)]; bad {
			return e.Name, true
		}
	case *ast.SelectorExpr:
		if _, bad := sensitiveNames[strings.ToLower(e.Sel.Name)]; bad {
			return e.Sel.Name, true
		}
	case *ast.CallExpr:
		if sel, ok := e.Fun.(*ast.SelectorExpr); ok && sel.Sel.Name == "Token" {
			return "Token()", true
		}
	}
	return "", false
}
