package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"folio/internal/card"
)

// exprCostLimit bounds evaluation work per ruling.
const exprCostLimit = 100000

// ErrInvalidExpr is returned when a --where expression does not compile or
// does not produce a bool.
var ErrInvalidExpr = errors.New("invalid filter expression")

// Expr is a compiled CEL predicate over one ruling. Expressions see:
//
//	name   string        card name
//	cost   string        raw cost, e.g. "2RG"
//	cmc    int           converted total
//	colors list(string)  colour letters, e.g. ["R", "G"]
//	types  list(string)  type names, e.g. ["Creature", "Artifact"]
//	rules  list(string)  rules text lines
//
// Example: cmc <= 2 && "Instant" in types && rules.exists(l, l.contains("damage"))
type Expr struct {
	source string
	prg    cel.Program
}

// CompileExpr parses and type-checks source.
func CompileExpr(source string) (*Expr, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpr)
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("cost", cel.StringType),
		cel.Variable("cmc", cel.IntType),
		cel.Variable("colors", cel.ListType(cel.StringType)),
		cel.Variable("types", cel.ListType(cel.StringType)),
		cel.Variable("rules", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: %q evaluates to %s, want bool", ErrInvalidExpr, source, ast.OutputType())
	}

	prg, err := env.Program(ast, cel.CostLimit(exprCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpr, err)
	}
	return &Expr{source: source, prg: prg}, nil
}

// Match evaluates the expression against r. Evaluation errors, such as an
// exceeded cost limit, count as no match.
func (e *Expr) Match(r card.Ruling) bool {
	rules := r.RulesText
	if rules == nil {
		rules = []string{}
	}
	out, _, err := e.prg.Eval(map[string]any{
		"name":   r.Name,
		"cost":   r.Cost.Raw(),
		"cmc":    int64(r.Cost.Total()),
		"colors": r.Colors().Letters(),
		"types":  r.Types.Names(),
		"rules":  rules,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func (e *Expr) String() string { return e.source }
