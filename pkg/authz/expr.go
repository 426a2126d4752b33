package authz

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// ErrInvalidExpression is returned for rule expressions that do not compile
// to a boolean.
var ErrInvalidExpression = errors.New("invalid rule expression")

// Env is the evaluation environment of an ExprRule.
//
//	subject   string            the identity's subject
//	can       func(string) bool capability test
//	kind      string            resource type name
//	id        string            resource id
//	resource  map[string]any    resource elements
type Env map[string]any

func compileEnv() Env {
	return Env{
		"subject":  "",
		"can":      func(string) bool { return false },
		"kind":     "",
		"id":       "",
		"resource": map[string]any{},
	}
}

// ExprRule allows access when a boolean expression evaluates to true.
//
//	can("Observation.read") && resource.status == "final"
type ExprRule struct {
	name    string
	source  string
	program *vm.Program
}

// NewExprRule compiles source. name is reported as the allow reason.
func NewExprRule(name, source string) (*ExprRule, error) {
	program, err := expr.Compile(source, expr.Env(compileEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidExpression, name, err)
	}
	return &ExprRule{name: name, source: source, program: program}, nil
}

// Name returns the rule name.
func (e *ExprRule) Name() string { return e.name }

// Source returns the expression text.
func (e *ExprRule) Source() string { return e.source }

// ReasonAllowed implements Rule. Evaluation errors deny.
func (e *ExprRule) ReasonAllowed(id Identity, r *resource.Resource) (string, bool) {
	if id == nil || r == nil {
		return "", false
	}
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	env := Env{
		"subject":  id.Subject(),
		"can":      func(c string) bool { return id.HasCapability(Capability(c)) },
		"kind":     r.Kind.String(),
		"id":       r.ID,
		"resource": fields,
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return "", false
	}
	if ok, _ := out.(bool); ok {
		return "rule " + e.name, true
	}
	return "", false
}
