// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"

	"github.com/tessera-dev/tessera/internal/platform/apperr"
)

// conditionFieldRe matches the repeated form-encoded condition fields:
// property[n], operator[n], value[n], type[n], language[n].
var conditionFieldRe = regexp.MustCompile(`^(property|operator|value|type|language)\[(\d+)\]$`)

/*
ParseConditions decodes search conditions from form-encoded fields.

Each condition n is described by the fields property[n], operator[n],
value[n], type[n] and language[n]; property[n] and value[n] may repeat to
form arrays. The operator defaults to "=". Conditions come back in index
order; gaps in the numbering are allowed.
*/
func ParseConditions(form url.Values) ([]*Condition, error) {
	type rawCondition struct {
		properties []string
		operator   string
		values     []string
		typeHint   string
		language   string
	}

	raw := map[int]*rawCondition{}
	at := func(n int) *rawCondition {
		if raw[n] == nil {
			raw[n] = &rawCondition{}
		}
		return raw[n]
	}

	for key, fieldValues := range form {
		m := conditionFieldRe.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, apperr.MalformedCondition("invalid condition index in %q", key)
		}

		c := at(n)
		switch m[1] {
		case "property":
			c.properties = append(c.properties, fieldValues...)
		case "value":
			c.values = append(c.values, fieldValues...)
		case "operator":
			c.operator = fieldValues[0]
		case "type":
			c.typeHint = fieldValues[0]
		case "language":
			c.language = fieldValues[0]
		}
	}

	indices := make([]int, 0, len(raw))
	for n := range raw {
		indices = append(indices, n)
	}
	sort.Ints(indices)

	conditions := make([]*Condition, 0, len(indices))
	for _, n := range indices {
		rc := raw[n]
		if rc.operator == "" {
			rc.operator = string(OpEq)
		}
		c, err := NewCondition(rc.properties, rc.operator, rc.values, rc.typeHint, rc.language)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, c)
	}
	return conditions, nil
}

// FormValues encodes conditions back into the repeated-field wire form,
// the inverse of [ParseConditions].
func FormValues(conditions []*Condition) url.Values {
	form := url.Values{}
	for n, c := range conditions {
		idx := "[" + strconv.Itoa(n) + "]"
		for _, p := range c.Property {
			form.Add("property"+idx, p)
		}
		form.Set("operator"+idx, string(c.Operator))
		for _, v := range c.Value {
			form.Add("value"+idx, v)
		}
		if c.Type != "" {
			form.Set("type"+idx, string(c.Type))
		}
		if c.Language != "" {
			form.Set("language"+idx, c.Language)
		}
	}
	return form
}
