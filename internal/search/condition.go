// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

// NegateMark prefixed on a property name makes a relation condition match
// the subject side instead of the object side.
const NegateMark = "^"

// DescMark prefixed on an ordering property requests descending order.
const DescMark = "^"

// Operator is a recognized search condition operator.
type Operator string

// Recognized operators. Spatial operators accept a numeric distance suffix
// (e.g. "&&1000" for within 1000 meters), parsed at construction time.
const (
	OpEq       Operator = "="
	OpGt       Operator = ">"
	OpLt       Operator = "<"
	OpLtEq     Operator = "<="
	OpGtEq     Operator = ">="
	OpRegex    Operator = "~"
	OpRegexCI  Operator = "~*"
	OpFts      Operator = "@@"
	OpBBox     Operator = "&&"  // bounding-box overlap (default spatial test)
	OpIntersec Operator = "&&&" // exact geometry intersection
	OpContains Operator = "&>"  // resource geometry contains the query geometry
	OpWithin   Operator = "&<"  // resource geometry contained by the query geometry
)

// DataType names the resolved value type of a condition.
type DataType string

const (
	TypeNumber   DataType = "number"
	TypeDate     DataType = "date"
	TypeDatetime DataType = "datetime"
	TypeString   DataType = "string"
	TypeRelation DataType = "relation"
	TypeFts      DataType = "fts"
	TypeSpatial  DataType = "spatial"
	TypeID       DataType = "id"
)

// xsdTypes maps XSD datatype URIs onto condition data types, so wire clients
// may send either form.
var xsdTypes = map[string]DataType{
	schema.TypeString:   TypeString,
	schema.TypeInteger:  TypeNumber,
	schema.TypeDecimal:  TypeNumber,
	schema.TypeDate:     TypeDate,
	schema.TypeDateTime: TypeDatetime,
	"http://www.w3.org/2000/01/rdf-schema#Resource": TypeRelation,
}

var (
	numberRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	// Accepts a leading '-' for BCE years and years of four or more digits.
	dateRe = regexp.MustCompile(`^-?\d{4,}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}([.]\d+)?Z?)?$`)
	urlRe  = regexp.MustCompile(`(?:[a-zA-Z][a-zA-Z0-9+.-]*://|www\.)[^\s"]+`)
)

// Condition is one immutable search predicate.
//
// Property and Value may both hold multiple entries; such a condition is the
// OR-union of every (single property, single value) combination. An empty
// Property list means "any property".
type Condition struct {
	Property []string
	Operator Operator
	Value    []string
	// Type is the optional datatype hint; empty means "guess from the value".
	Type DataType
	// Language restricts literal and full-text matches to one language.
	Language string

	// distance is the parsed numeric suffix of a spatial operator, in meters.
	// Negative when absent.
	distance float64
}

// NewCondition validates and constructs a condition. Unknown operators and
// unknown datatype hints are rejected here, never deferred to compile time.
func NewCondition(properties []string, operator string, values []string, typeHint, language string) (*Condition, error) {
	op, distance, err := parseOperator(operator)
	if err != nil {
		return nil, err
	}

	dt := DataType("")
	if typeHint != "" {
		dt, err = parseDataType(typeHint)
		if err != nil {
			return nil, err
		}
	}

	return &Condition{
		Property: properties,
		Operator: op,
		Value:    values,
		Type:     dt,
		Language: language,
		distance: distance,
	}, nil
}

// parseOperator recognizes an operator string, splitting off the numeric
// distance suffix of spatial operators.
func parseOperator(raw string) (Operator, float64, error) {
	switch Operator(raw) {
	case OpEq, OpGt, OpLt, OpLtEq, OpGtEq, OpRegex, OpRegexCI, OpFts, OpBBox, OpIntersec, OpContains, OpWithin:
		return Operator(raw), -1, nil
	}

	// Spatial operators may carry a distance suffix, longest prefix first.
	for _, op := range []Operator{OpIntersec, OpBBox, OpContains, OpWithin} {
		if strings.HasPrefix(raw, string(op)) {
			suffix := raw[len(op):]
			d, err := strconv.ParseFloat(suffix, 64)
			if err == nil && d >= 0 {
				return op, d, nil
			}
		}
	}

	return "", -1, apperr.MalformedCondition("unknown operator %q", raw)
}

// parseDataType recognizes a datatype hint, accepting both the short names
// and XSD datatype URIs.
func parseDataType(raw string) (DataType, error) {
	switch DataType(raw) {
	case TypeNumber, TypeDate, TypeDatetime, TypeString, TypeRelation, TypeFts, TypeSpatial, TypeID:
		return DataType(raw), nil
	}
	if dt, ok := xsdTypes[raw]; ok {
		return dt, nil
	}
	return "", apperr.MalformedCondition("unknown datatype %q", raw)
}

// IsSpatial reports whether the condition is a geometry predicate, either by
// explicit type hint or because its operator mandates one.
func (c *Condition) IsSpatial() bool {
	if c.Type == TypeSpatial {
		return true
	}
	switch c.Operator {
	case OpBBox, OpIntersec, OpContains, OpWithin:
		return true
	}
	return false
}

// CompileCtx carries the repository-specific inputs of condition compilation.
type CompileCtx struct {
	Schema *schema.Registry

	// StringIndexBound is the substring length of the partial index on
	// metadata string values. Equality predicates on shorter values are
	// expressed against the bounded substring so the planner can use it.
	StringIndexBound int

	// MinTimestampYear is the earliest year the timestamp column can hold;
	// conditions on older dates compare the numeric year instead.
	MinTimestampYear int
}

// Compile translates the condition into an id-set fragment: a
// "SELECT id FROM ..." query returning exactly the ids satisfying it.
func (c *Condition) Compile(ctx CompileCtx) (sqlfrag.Fragment, error) {
	if len(c.Property) == 0 && len(c.Value) == 0 {
		return sqlfrag.Empty(), apperr.MalformedCondition("search condition without property and value")
	}

	properties := c.Property
	if len(properties) == 0 {
		properties = []string{""}
	}
	values := c.Value
	if len(values) == 0 {
		values = []string{""}
	}

	// The id fast path keeps all values in one VALUES list. It only exists
	// through the explicit hint; ids are never guessed from value shape.
	if c.Type == TypeID {
		return c.compileID(c.Value)
	}

	// Array property or value expands to the union of every combination.
	var parts []sqlfrag.Fragment
	for _, p := range properties {
		for _, v := range values {
			f, err := c.compileSingle(p, v, ctx)
			if err != nil {
				return sqlfrag.Empty(), err
			}
			parts = append(parts, f)
		}
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return sqlfrag.Union(parts...), nil
}

// resolveType determines the effective datatype of one (property, value)
// combination, in priority order: negate marker, operator-mandated type,
// explicit hint, value shape guess, literal-only override.
func (c *Condition) resolveType(property, value string, ctx CompileCtx) DataType {
	resolved := TypeString

	switch {
	case strings.HasPrefix(property, NegateMark):
		resolved = TypeRelation
	case c.Operator == OpFts:
		resolved = TypeFts
	case c.Operator == OpBBox || c.Operator == OpIntersec || c.Operator == OpContains || c.Operator == OpWithin:
		resolved = TypeSpatial
	case c.Type != "":
		resolved = c.Type
	case numberRe.MatchString(value):
		resolved = TypeNumber
	case dateRe.MatchString(value):
		resolved = TypeDatetime
	}

	// A property known to hold only literals is pinned to string, except for
	// the search-signal types whose operator decides alone.
	if property != "" && ctx.Schema != nil && ctx.Schema.IsLiteralOnly(property) {
		if resolved != TypeFts && resolved != TypeSpatial {
			resolved = TypeString
		}
	}
	return resolved
}

// compileSingle compiles one (single property, single value) combination.
func (c *Condition) compileSingle(property, value string, ctx CompileCtx) (sqlfrag.Fragment, error) {
	if value == "" && property != "" {
		return c.compileExists(property)
	}
	switch dt := c.resolveType(property, value, ctx); dt {
	case TypeFts:
		return c.compileFts(property, value, ctx)
	case TypeSpatial:
		return c.compileSpatial(value)
	case TypeRelation:
		return c.compileRelation(property, value, ctx)
	default:
		return c.compileLiteral(property, value, dt, ctx)
	}
}

// compileExists matches resources carrying any value for a property, in
// either the metadata or the relations table.
func (c *Condition) compileExists(property string) (sqlfrag.Fragment, error) {
	if c.Operator != OpEq {
		return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for property-existence conditions", c.Operator)
	}
	property = strings.TrimPrefix(property, NegateMark)
	return sqlfrag.Union(
		sqlfrag.New(
			"SELECT "+schema.Metadata.ID+" FROM "+schema.Metadata.Table+
				" WHERE "+schema.Metadata.Property+" = ?",
			property,
		),
		sqlfrag.New(
			"SELECT "+schema.Relations.ID+" FROM "+schema.Relations.Table+
				" WHERE "+schema.Relations.Property+" = ?",
			property,
		),
	), nil
}

// # ID fast path

// compileID expresses match-by-primary-key as a generic search fragment.
func (c *Condition) compileID(values []string) (sqlfrag.Fragment, error) {
	if c.Operator != OpEq {
		return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for id conditions", c.Operator)
	}
	if len(values) == 0 {
		return sqlfrag.Empty(), apperr.MalformedCondition("id condition without values")
	}

	rows := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return sqlfrag.Empty(), apperr.MalformedCondition("invalid id value %q", v)
		}
		rows = append(rows, "(?::bigint)")
		args = append(args, id)
	}

	return sqlfrag.New(
		"SELECT id FROM (VALUES "+strings.Join(rows, ",")+") AS t (id)",
		args...,
	), nil
}

// # Full-text conditions

// compileFts matches the precomputed search segments with the web-search
// query parser. URIs embedded in the phrase are quoted first so they parse
// as literal phrases instead of being tokenized.
func (c *Condition) compileFts(property, value string, ctx CompileCtx) (sqlfrag.Fragment, error) {
	if value == "" {
		return sqlfrag.Empty(), apperr.MalformedCondition("full-text condition without a phrase")
	}

	f := sqlfrag.New(
		"SELECT DISTINCT f."+schema.FullTextSearch.ID+
			" FROM "+schema.FullTextSearch.Table+" f",
	)

	if c.Language != "" {
		f = f.Append(
			" JOIN "+schema.Metadata.Table+" m ON m."+schema.Metadata.MID+" = f."+schema.FullTextSearch.MID,
		)
	}

	f = f.Append(
		" WHERE f."+schema.FullTextSearch.Segments+" @@ websearch_to_tsquery('simple', ?)",
		QuoteURIs(value),
	)

	if c.Language != "" {
		// Exact language match or an untagged literal.
		f = f.Append(" AND (m."+schema.Metadata.Lang+" = ? OR m."+schema.Metadata.Lang+" = '')", c.Language)
	}

	switch {
	case property == "":
		// No scoping.
	case ctx.Schema != nil && property == ctx.Schema.ID:
		// Scoping by the identifier property means "matched an identifier row".
		f = f.Append(" AND f." + schema.FullTextSearch.IID + " IS NOT NULL")
	case property == schema.BinarySearch:
		// The synthetic BINARY property routes to binary payload matches.
		f = f.Append(" AND f." + schema.FullTextSearch.MID + " IS NULL AND f." + schema.FullTextSearch.IID + " IS NULL")
	default:
		f = f.Append(" AND f."+schema.FullTextSearch.Property+" = ?", property)
	}

	return f, nil
}

// QuoteURIs wraps URL-looking tokens of a search phrase in double quotes so
// the web-search parser treats them as literal phrases.
func QuoteURIs(phrase string) string {
	return urlRe.ReplaceAllStringFunc(phrase, func(m string) string {
		if strings.HasPrefix(m, `"`) {
			return m
		}
		return `"` + m + `"`
	})
}

// # Spatial conditions

// compileSpatial dispatches on the spatial operator against a WKT geometry.
func (c *Condition) compileSpatial(value string) (sqlfrag.Fragment, error) {
	if value == "" {
		return sqlfrag.Empty(), apperr.MalformedCondition("spatial condition without a geometry")
	}

	geom := "ST_GeomFromText(?, 4326)"
	sel := "SELECT " + schema.SpatialSearch.ID + " FROM " + schema.SpatialSearch.Table + " WHERE "
	col := schema.SpatialSearch.Geom

	if c.distance >= 0 {
		return sqlfrag.New(
			sel+"ST_DWithin("+col+"::geography, "+geom+"::geography, ?)",
			value, c.distance,
		), nil
	}

	switch c.Operator {
	case OpBBox:
		return sqlfrag.New(sel+col+" && "+geom, value), nil
	case OpIntersec:
		return sqlfrag.New(sel+"ST_Intersects("+col+", "+geom+")", value), nil
	case OpContains:
		return sqlfrag.New(sel+"ST_Contains("+col+", "+geom+")", value), nil
	case OpWithin:
		return sqlfrag.New(sel+"ST_Contains("+geom+", "+col+")", value), nil
	}
	return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for spatial conditions", c.Operator)
}

// # Relation conditions

// compileRelation joins the relations table to the identifiers table. The
// negate marker on the property reverses the direction: the condition then
// matches the subject side instead of the object side.
func (c *Condition) compileRelation(property, value string, ctx CompileCtx) (sqlfrag.Fragment, error) {
	if c.Operator != OpEq {
		return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for relation conditions", c.Operator)
	}
	if value == "" {
		return sqlfrag.Empty(), apperr.MalformedCondition("relation condition without a target")
	}

	reversed := strings.HasPrefix(property, NegateMark)
	property = strings.TrimPrefix(property, NegateMark)

	idCol, matchCol := "r."+schema.Relations.ID, "r."+schema.Relations.TargetID
	if reversed {
		idCol, matchCol = "r."+schema.Relations.TargetID, "r."+schema.Relations.ID
	}

	f := sqlfrag.New(
		"SELECT "+idCol+" AS id FROM "+schema.Relations.Table+" r"+
			" JOIN "+schema.Identifiers.Table+" i ON i."+schema.Identifiers.ID+" = "+matchCol+
			" WHERE i."+schema.Identifiers.IDs+" = ?",
		value,
	)
	if property != "" {
		f = f.Append(" AND r."+schema.Relations.Property+" = ?", property)
	}
	return f, nil
}

// # Literal conditions

// compileLiteral matches the typed value column appropriate to the resolved
// type, plus the identifiers and relations tables reinterpreted as literal
// sources for string conditions on non-pinned properties.
func (c *Condition) compileLiteral(property, value string, dt DataType, ctx CompileCtx) (sqlfrag.Fragment, error) {
	if value == "" {
		return sqlfrag.Empty(), apperr.MalformedCondition("literal condition without a value")
	}

	var predicate sqlfrag.Fragment
	var err error
	switch dt {
	case TypeNumber:
		predicate, err = c.numberPredicate(value)
	case TypeDate, TypeDatetime:
		predicate, err = c.timePredicate(value, ctx)
	default:
		predicate, err = c.stringPredicate(value, ctx)
	}
	if err != nil {
		return sqlfrag.Empty(), err
	}

	f := sqlfrag.New("SELECT " + schema.Metadata.ID + " FROM " + schema.Metadata.Table + " WHERE ")
	if property != "" {
		f = f.Append(schema.Metadata.Property+" = ? AND ", property)
	}
	f = sqlfrag.Join("", f, predicate)
	if c.Language != "" {
		f = f.Append(" AND "+schema.Metadata.Lang+" = ?", c.Language)
	}

	// The property may be stored as an identifier or a relation target even
	// though it is logically a literal; string conditions union those tables
	// in as literal sources.
	if dt != TypeString || (ctx.Schema != nil && property != "" && ctx.Schema.IsLiteralOnly(property)) {
		return f, nil
	}

	strOp := string(c.Operator)
	parts := []sqlfrag.Fragment{f}
	if property == "" || (ctx.Schema != nil && property == ctx.Schema.ID) {
		parts = append(parts, sqlfrag.New(
			"SELECT "+schema.Identifiers.ID+" FROM "+schema.Identifiers.Table+
				" WHERE "+schema.Identifiers.IDs+" "+strOp+" ?",
			value,
		))
	}
	rel := sqlfrag.New(
		"SELECT r."+schema.Relations.ID+" FROM "+schema.Relations.Table+" r"+
			" JOIN "+schema.Identifiers.Table+" i ON i."+schema.Identifiers.ID+" = r."+schema.Relations.TargetID,
	)
	if property != "" {
		rel = rel.Append(" AND r."+schema.Relations.Property+" = ?", property)
	}
	rel = rel.Append(" WHERE i."+schema.Identifiers.IDs+" "+strOp+" ?", value)
	parts = append(parts, rel)

	return sqlfrag.Union(parts...), nil
}

// numberPredicate compares the numeric projection column.
func (c *Condition) numberPredicate(value string) (sqlfrag.Fragment, error) {
	if !comparisonOp(c.Operator) {
		return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for number conditions", c.Operator)
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return sqlfrag.Empty(), apperr.MalformedCondition("invalid number value %q", value)
	}
	return sqlfrag.New(schema.Metadata.ValueN+" "+string(c.Operator)+" ?", n), nil
}

// timePredicate compares the timestamp column, falling back to the numeric
// year for dates the timestamp column cannot represent.
func (c *Condition) timePredicate(value string, ctx CompileCtx) (sqlfrag.Fragment, error) {
	if !comparisonOp(c.Operator) {
		return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for date conditions", c.Operator)
	}
	if !dateRe.MatchString(value) {
		return sqlfrag.Empty(), apperr.MalformedCondition("invalid date value %q", value)
	}

	if literalYear(value) < ctx.MinTimestampYear {
		// Out-of-range timestamp: compare the numeric year component instead.
		return sqlfrag.New(schema.Metadata.ValueN+" "+string(c.Operator)+" ?", float64(literalYear(value))), nil
	}
	return sqlfrag.New(schema.Metadata.ValueT+" "+string(c.Operator)+" ?::timestamp", value), nil
}

// stringPredicate compares the value column. Short equality predicates use
// the length-bounded substring form matching the partial index expression.
func (c *Condition) stringPredicate(value string, ctx CompileCtx) (sqlfrag.Fragment, error) {
	switch c.Operator {
	case OpEq, OpGt, OpLt, OpLtEq, OpGtEq, OpRegex, OpRegexCI:
	default:
		return sqlfrag.Empty(), apperr.MalformedCondition("operator %q not allowed for string conditions", c.Operator)
	}

	bound := ctx.StringIndexBound
	if c.Operator == OpEq && bound > 0 && len(value) < bound {
		return sqlfrag.New(
			fmt.Sprintf("substring(%s, 1, %d) = ?", schema.Metadata.Value, bound),
			value,
		), nil
	}
	return sqlfrag.New(schema.Metadata.Value+" "+string(c.Operator)+" ?", value), nil
}

// comparisonOp reports whether the operator is an ordering comparison.
func comparisonOp(op Operator) bool {
	switch op {
	case OpEq, OpGt, OpLt, OpLtEq, OpGtEq:
		return true
	}
	return false
}

// literalYear extracts the (possibly negative) year component of an
// ISO-8601-like date literal.
func literalYear(value string) int {
	rest := value
	negative := strings.HasPrefix(rest, "-")
	if negative {
		rest = rest[1:]
	}
	end := strings.IndexByte(rest, '-')
	if end < 0 {
		end = len(rest)
	}
	year, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	if negative {
		return -year
	}
	return year
}
