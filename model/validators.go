package model

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator is a predicate over a normalised value.
type Validator func(value any) bool

// IDPattern is the pattern identifiers must match.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,75}$`)

// Pattern accepts strings fully matching re.
func Pattern(re *regexp.Regexp) Validator {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	}
}

// Identifier accepts strings matching IDPattern.
func Identifier() Validator {
	return Pattern(IDPattern)
}

// OptionalIdentifier accepts the empty string or an identifier.
func OptionalIdentifier() Validator {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && (s == "" || IDPattern.MatchString(s))
	}
}

// NonNegative accepts numbers >= 0.
func NonNegative() Validator {
	return func(v any) bool {
		f, ok := v.(float64)
		return ok && f >= 0
	}
}

// Integer accepts numbers without a fractional part.
func Integer() Validator {
	return func(v any) bool {
		f, ok := v.(float64)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	}
}

// OneOf accepts values equal to one of the allowed strings.
func OneOf(allowed ...string) Validator {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, ok = set[s]
		return ok
	}
}

// NotEmpty accepts non-blank strings and non-empty lists and mappings.
func NotEmpty() Validator {
	return func(v any) bool {
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t) != ""
		case []any:
			return len(t) > 0
		case map[string]any:
			return len(t) > 0
		}
		return false
	}
}

// Each accepts lists whose every item satisfies item.
func Each(item Validator) Validator {
	return func(v any) bool {
		list, ok := v.([]any)
		if !ok {
			return false
		}
		for _, x := range list {
			if !item(x) {
				return false
			}
		}
		return true
	}
}

// All accepts values satisfying every validator.
func All(validators ...Validator) Validator {
	return func(v any) bool {
		for _, fn := range validators {
			if fn != nil && !fn(v) {
				return false
			}
		}
		return true
	}
}

var ruleSeq atomic.Uint64

// Rule compiles a JSON Schema fragment into a validator. It panics when the
// fragment does not compile.
//
//	model.Rule(`{"type": "object", "required": ["step"]}`)
func Rule(schema string) Validator {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("rule-%d.json", ruleSeq.Add(1))
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("model: add rule: %v", err))
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("model: compile rule: %v", err))
	}
	return func(v any) bool {
		return compiled.Validate(v) == nil
	}
}
