// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package sqlfrag provides an immutable SQL fragment value type.

A [Fragment] pairs SQL text with its ordered positional parameters. Fragments
compose structurally (join, union, prefix, wrap) without renumbering because
the text uses '?' placeholders; conversion to PostgreSQL's numbered '$n' form
happens once, at execution time, via [Fragment.Numbered].

# Invariant

The number of '?' placeholders in the text always equals the length of the
parameter list. Every composition operator preserves the invariant, and
[Fragment.Numbered] verifies it before a fragment reaches the driver.
Fragment text must not contain a literal '?' outside of a placeholder
position; values always travel as parameters, never inlined.
*/
package sqlfrag

import (
	"fmt"
	"strconv"
	"strings"
)

// Fragment is an immutable (SQL text, positional parameter list) pair.
//
// The zero value is the empty fragment, which composition operators skip.
type Fragment struct {
	sql  string
	args []any
}

// New constructs a fragment from SQL text with '?' placeholders and the
// matching parameter values, in placeholder order.
func New(sql string, args ...any) Fragment {
	return Fragment{sql: sql, args: args}
}

// Empty returns the empty fragment.
func Empty() Fragment { return Fragment{} }

// IsEmpty reports whether the fragment carries no SQL text.
func (f Fragment) IsEmpty() bool { return f.sql == "" }

// SQL returns the fragment's text with '?' placeholders.
func (f Fragment) SQL() string { return f.sql }

// Args returns a copy of the fragment's positional parameters.
func (f Fragment) Args() []any {
	out := make([]any, len(f.args))
	copy(out, f.args)
	return out
}

// Placeholders returns the number of '?' placeholders in the fragment.
func (f Fragment) Placeholders() int { return strings.Count(f.sql, "?") }

// Join concatenates non-empty fragments with the given glue text.
// Parameters are concatenated in fragment order.
func Join(glue string, frags ...Fragment) Fragment {
	var parts []string
	var args []any
	for _, fr := range frags {
		if fr.IsEmpty() {
			continue
		}
		parts = append(parts, fr.sql)
		args = append(args, fr.args...)
	}
	return Fragment{sql: strings.Join(parts, glue), args: args}
}

// Union combines non-empty fragments with SQL UNION. Each operand is
// parenthesized so ORDER BY or LIMIT clauses inside operands stay scoped.
func Union(frags ...Fragment) Fragment {
	var parts []string
	var args []any
	for _, fr := range frags {
		if fr.IsEmpty() {
			continue
		}
		parts = append(parts, "("+fr.sql+")")
		args = append(args, fr.args...)
	}
	return Fragment{sql: strings.Join(parts, " UNION "), args: args}
}

// Prefix prepends SQL text (with its own parameters) to the fragment.
func (f Fragment) Prefix(sql string, args ...any) Fragment {
	if f.IsEmpty() {
		return Fragment{sql: sql, args: args}
	}
	return Fragment{
		sql:  sql + f.sql,
		args: append(append([]any{}, args...), f.args...),
	}
}

// Append adds SQL text (with its own parameters) after the fragment.
func (f Fragment) Append(sql string, args ...any) Fragment {
	if f.IsEmpty() {
		return Fragment{sql: sql, args: args}
	}
	return Fragment{
		sql:  f.sql + sql,
		args: append(append([]any{}, f.args...), args...),
	}
}

// Wrap surrounds the fragment's text with the given before and after text.
// Wrapping the empty fragment yields the empty fragment.
func (f Fragment) Wrap(before, after string) Fragment {
	if f.IsEmpty() {
		return f
	}
	return Fragment{sql: before + f.sql + after, args: f.args}
}

// Numbered converts '?' placeholders to PostgreSQL '$n' placeholders,
// numbering from start (1 for a standalone statement). It returns an error
// when the placeholder count does not match the parameter count.
func (f Fragment) Numbered(start int) (string, []any, error) {
	n := f.Placeholders()
	if n != len(f.args) {
		return "", nil, fmt.Errorf("sqlfrag: %d placeholders but %d parameters in %q", n, len(f.args), f.sql)
	}

	var b strings.Builder
	b.Grow(len(f.sql) + 2*n)
	idx := start
	for _, r := range f.sql {
		if r == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(idx))
			idx++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), f.Args(), nil
}
