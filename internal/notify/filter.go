package notify

import (
	"strings"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL expression over a request snapshot. The zero
// value matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// CompileFilter compiles expr. Available variables: event, status, priority,
// routing, cultural_tag, claimed_by, tags, version, response_count.
// An invalid expression is a validation error.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("event", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("routing", cel.StringType),
		cel.Variable("cultural_tag", cel.StringType),
		cel.Variable("claimed_by", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("version", cel.IntType),
		cel.Variable("response_count", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, errs.NewValidationError("filter", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, errs.NewValidationError("filter", "expression must evaluate to bool")
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, errs.NewValidationError("filter", err.Error())
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter against ev's request snapshot. Evaluation
// errors count as no match.
func (f Filter) Match(ev model.Event) bool {
	if !f.enabled {
		return true
	}
	r := ev.Request
	if r == nil {
		return false
	}
	claimedBy := ""
	if r.ClaimedBy != nil {
		claimedBy = *r.ClaimedBy
	}
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"event":          string(ev.Type),
		"status":         string(r.Status),
		"priority":       string(r.Priority),
		"routing":        string(r.Routing),
		"cultural_tag":   r.CulturalTag,
		"claimed_by":     claimedBy,
		"tags":           tags,
		"version":        r.Version,
		"response_count": int64(r.ResponseCount),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
