// Package condition evaluates the flat condition expressions used by
// data-show-if, data-skip-if, and data-skip-unless attributes.
//
// The grammar is deliberately small: a bare key, a "!" prefix for negation,
// comma-separated keys for OR, or ampersand-separated keys for AND. This is
// not a boolean expression language; there is no grouping and the two
// operators cannot be mixed in one expression.
package condition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMixedOperators is reported by Validate for expressions combining "," and
// "&". Earlier form builds silently evaluated these as OR-only; rejecting them
// outright makes the author fix the expression instead of shipping a form
// that quietly ignores half its condition.
var ErrMixedOperators = errors.New("condition mixes ',' and '&' operators")

// Values is the active-condition lookup the evaluator runs against. A key is
// truthy when present with a non-empty value.
type Values map[string]string

// Truthy reports whether key is present with a non-empty value.
func (v Values) Truthy(key string) bool { return v[key] != "" }

// Validate checks an expression for well-formedness without evaluating it.
// Empty expressions and mixed-operator expressions are rejected. Intended for
// initialization-time scans so malformed markup is diagnosed once, up front.
func Validate(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return errors.New("empty condition")
	}
	for strings.HasPrefix(expr, "!") {
		expr = strings.TrimSpace(expr[1:])
		if expr == "" {
			return errors.New("negation of empty condition")
		}
	}
	if strings.Contains(expr, ",") && strings.Contains(expr, "&") {
		return fmt.Errorf("%w: %q", ErrMixedOperators, expr)
	}
	for _, key := range splitKeys(expr) {
		if key == "" {
			return fmt.Errorf("empty key in condition %q", expr)
		}
	}
	return nil
}

// Evaluate applies expr to the given values. Malformed expressions (empty,
// mixed operators, blank keys) evaluate to false; a leading "!" negates the
// remainder.
func Evaluate(expr string, values Values) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	if strings.HasPrefix(expr, "!") {
		rest := strings.TrimSpace(expr[1:])
		if rest == "" {
			return false
		}
		return !Evaluate(rest, values)
	}
	if strings.Contains(expr, ",") {
		if strings.Contains(expr, "&") {
			return false
		}
		for _, key := range strings.Split(expr, ",") {
			key = strings.TrimSpace(key)
			if key != "" && values.Truthy(key) {
				return true
			}
		}
		return false
	}
	if strings.Contains(expr, "&") {
		keys := strings.Split(expr, "&")
		for _, key := range keys {
			key = strings.TrimSpace(key)
			if key == "" || !values.Truthy(key) {
				return false
			}
		}
		return true
	}
	return values.Truthy(expr)
}

func splitKeys(expr string) []string {
	var parts []string
	switch {
	case strings.Contains(expr, ","):
		parts = strings.Split(expr, ",")
	case strings.Contains(expr, "&"):
		parts = strings.Split(expr, "&")
	default:
		parts = []string{expr}
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
