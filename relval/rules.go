package relval

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

// Rule is a boolean expression every created or updated document of a
// collection must satisfy, for example `memory <= 16000`. Attributes are
// available as variables.
type Rule struct {
	Name string
	Expr string
}

type compiledRule struct {
	name    string
	program *vm.Program
}

// Rules holds the compiled rules of every collection. A nil *Rules accepts
// everything.
type Rules struct {
	byCollection map[string][]compiledRule
}

// CompileRules compiles rules keyed by collection name.
func CompileRules(rules map[string][]Rule) (*Rules, error) {
	out := &Rules{byCollection: make(map[string][]compiledRule, len(rules))}
	for collection, list := range rules {
		for _, r := range list {
			program, err := expr.Compile(r.Expr, expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("compile %s rule %q: %w", collection, r.Name, err)
			}
			name := r.Name
			if name == "" {
				name = r.Expr
			}
			out.byCollection[collection] = append(out.byCollection[collection], compiledRule{name: name, program: program})
		}
	}
	return out, nil
}

// Check evaluates the rules of collection against doc and vetoes on the
// first one that does not hold.
func (r *Rules) Check(collection string, doc model.Object) error {
	if r == nil {
		return nil
	}
	for _, rule := range r.byCollection[collection] {
		result, err := expr.Run(rule.program, map[string]any(doc))
		if err != nil {
			return controller.Vetof("rule %q: %v", rule.name, err)
		}
		if ok, _ := result.(bool); !ok {
			return controller.Vetof("rule %q is not satisfied", rule.name)
		}
	}
	return nil
}
