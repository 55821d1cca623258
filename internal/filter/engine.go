package filter

import (
	"context"
	"strings"
)

// Engine evaluates a filter expression against a flat event document.
// Three implementations: Expr (default), CEL ("cel:" prefix), GoJQ ("jq:"
// prefix).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, doc map[string]any) (any, error)
}

// Matcher dispatches a filter expression to the right engine by language
// prefix and reduces the result to match / no-match. Safe for concurrent use.
type Matcher struct {
	expr *ExprEngine
	cel  *CELEngine
	jq   *GoJQEngine
}

func NewMatcher() (*Matcher, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Matcher{
		expr: NewExprEngine(),
		cel:  celEngine,
		jq:   NewGoJQEngine(),
	}, nil
}

// split returns the engine for an expression plus the expression body with
// the language prefix stripped. No prefix means Expr.
func (m *Matcher) split(expression string) (Engine, string) {
	switch {
	case strings.HasPrefix(expression, "cel:"):
		return m.cel, strings.TrimSpace(strings.TrimPrefix(expression, "cel:"))
	case strings.HasPrefix(expression, "jq:"):
		return m.jq, strings.TrimSpace(strings.TrimPrefix(expression, "jq:"))
	default:
		return m.expr, expression
	}
}

// Match evaluates the expression against the document. Only a boolean true
// result matches; nil, false, and non-boolean results do not. Compile and
// evaluation errors are returned so callers can reject bad expressions up
// front.
func (m *Matcher) Match(ctx context.Context, expression string, doc map[string]any) (bool, error) {
	engine, body := m.split(expression)
	out, err := engine.Evaluate(ctx, body, doc)
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	return ok && matched, nil
}

// Check compiles the expression without evaluating it, for rejecting
// malformed filters at subscription time.
func (m *Matcher) Check(expression string) error {
	engine, body := m.split(expression)
	switch e := engine.(type) {
	case *ExprEngine:
		_, err := e.getOrCompile(body)
		return err
	case *CELEngine:
		_, err := e.getOrCompile(body)
		return err
	case *GoJQEngine:
		_, err := e.getOrCompile(body)
		return err
	}
	return nil
}
