package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/evanw/esbuild/pkg/api"
)

// Transpile strips TypeScript syntax and lowers newer syntax the VM lacks.
// Type annotations are removed, never checked.
func Transpile(name, source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ES2017,
		Sourcefile: name,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", &SyntaxError{Message: formatMessage(result.Errors[0])}
	}
	return string(result.Code), nil
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return "SyntaxError: " + msg.Text
	}
	return fmt.Sprintf("SyntaxError: %s (%s:%d:%d)", msg.Text, msg.Location.File, msg.Location.Line, msg.Location.Column)
}

// CheckScript verifies that script, once wrapped the way BuildRecipe wraps
// it, parses as exactly one function expression. A script that closes the
// wrapper early to reach the surrounding module is rejected.
func CheckScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return &SyntaxError{Message: "script is empty"}
	}
	return checkFunctionExpression(scriptCallable(script))
}

// checkFunctionExpression transpiles expr and requires the result to be
// esbuild's helper declarations followed by one function expression.
func checkFunctionExpression(expr string) error {
	code, err := Transpile("script.ts", expr+";")
	if err != nil {
		return err
	}
	program, err := parser.ParseFile(nil, "script.js", code, 0)
	if err != nil {
		return &SyntaxError{Message: "SyntaxError: " + err.Error()}
	}
	if len(program.Body) == 0 {
		return errNotFunctionBody
	}

	last := len(program.Body) - 1
	for _, stmt := range program.Body[:last] {
		if !isHelperDeclaration(stmt) {
			return errNotFunctionBody
		}
	}
	stmt, ok := program.Body[last].(*ast.ExpressionStatement)
	if !ok {
		return errNotFunctionBody
	}
	switch stmt.Expression.(type) {
	case *ast.ArrowFunctionLiteral, *ast.FunctionLiteral:
		return nil
	default:
		return errNotFunctionBody
	}
}

var errNotFunctionBody = &SyntaxError{Message: "script must be a single function body"}

// isHelperDeclaration matches the "var __name = ..." runtime helpers esbuild
// emits when lowering syntax such as object spread or for await.
func isHelperDeclaration(stmt ast.Statement) bool {
	decl, ok := stmt.(*ast.VariableStatement)
	if !ok || len(decl.List) == 0 {
		return false
	}
	for _, binding := range decl.List {
		id, ok := binding.Target.(*ast.Identifier)
		if !ok || !strings.HasPrefix(string(id.Name), "__") {
			return false
		}
	}
	return true
}
