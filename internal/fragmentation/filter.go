package fragmentation

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// MemberFilter is an optional per-view CEL predicate over a member's id,
// subject and properties. A zero MemberFilter admits every member.
type MemberFilter struct {
	expr string
	prog cel.Program
}

// NewMemberFilter compiles expr. An empty expression disables filtering.
func NewMemberFilter(expr string) (MemberFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return MemberFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return MemberFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return MemberFilter{}, errors.Wrapf(iss.Err(), "compile member filter %q", expr)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return MemberFilter{}, err
	}
	return MemberFilter{expr: expr, prog: prog}, nil
}

func (f MemberFilter) Enabled() bool { return f.prog != nil }

func (f MemberFilter) String() string { return f.expr }

// Admit reports whether m passes the filter. Evaluation errors reject.
func (f MemberFilter) Admit(m Member) bool {
	if f.prog == nil {
		return true
	}
	props := m.Properties
	if props == nil {
		props = map[string]any{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":         m.ID,
		"subject":    m.Subject,
		"properties": props,
	})
	if err != nil {
		return false
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok
}
