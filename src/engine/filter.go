package engine

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"ghostdb/src/dberrors"
	"ghostdb/src/keys"
)

// The filter language: a filter document maps field names to criteria.
// A criterion is a literal (equality) or a mapping of operator to
// operand. "and"/"or"/"not" are the top-level logical keys; a leading
// "$" on any key is accepted and stripped.
var filterOperators = map[string]bool{
	"eq": true, "ne": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "nin": true,
	"exists": true,
}

type criterion struct {
	op      string
	operand interface{}
}

type fieldFilter struct {
	field string
	crits []criterion
}

// Filter is the parsed form of a filter document. Field order is
// normalized to name order at parse time so planning and the cache
// signature are deterministic.
type Filter struct {
	fields []fieldFilter
	and    []*Filter
	or     []*Filter
	not    *Filter
	sig    string
}

// ParseFilter validates and normalizes a raw filter document. A nil or
// empty document matches everything.
func ParseFilter(raw map[string]interface{}) (*Filter, error) {
	f := &Filter{}

	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	var sig strings.Builder
	sig.WriteByte('{')
	for _, name := range names {
		key := strings.TrimPrefix(name, "$")
		value := raw[name]

		switch key {
		case "and", "or":
			list, ok := value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s expects a list of filters: %w", key, dberrors.ErrInvalidQuery)
			}
			for _, item := range list {
				sub, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("%s list holds a non-filter element: %w", key, dberrors.ErrInvalidQuery)
				}
				parsed, err := ParseFilter(sub)
				if err != nil {
					return nil, err
				}
				if key == "and" {
					f.and = append(f.and, parsed)
				} else {
					f.or = append(f.or, parsed)
				}
				sig.WriteString(key)
				sig.WriteString(parsed.sig)
			}

		case "not":
			sub, ok := value.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("not expects a filter: %w", dberrors.ErrInvalidQuery)
			}
			parsed, err := ParseFilter(sub)
			if err != nil {
				return nil, err
			}
			f.not = parsed
			sig.WriteString("not")
			sig.WriteString(parsed.sig)

		default:
			ff, err := parseFieldCriterion(key, value)
			if err != nil {
				return nil, err
			}
			f.fields = append(f.fields, ff)
			sig.WriteString(key)
			sig.WriteByte(':')
			for _, c := range ff.crits {
				sig.WriteString(c.op)
				sig.WriteByte('=')
				sig.WriteString(hex.EncodeToString(keys.Encode(c.operand)))
				sig.WriteByte(';')
			}
		}
	}
	sig.WriteByte('}')
	f.sig = sig.String()
	return f, nil
}

// parseFieldCriterion classifies a criterion as an operator map or a
// literal equality. A map whose keys are all operators is the former;
// any other value matches by equality.
func parseFieldCriterion(field string, value interface{}) (fieldFilter, error) {
	ff := fieldFilter{field: field}

	opMap, ok := value.(map[string]interface{})
	if !ok || len(opMap) == 0 {
		ff.crits = append(ff.crits, criterion{op: "eq", operand: value})
		return ff, nil
	}

	opNames := make([]string, 0, len(opMap))
	sawOperator := false
	for k := range opMap {
		opNames = append(opNames, k)
		if filterOperators[strings.TrimPrefix(k, "$")] {
			sawOperator = true
		}
	}
	if !sawOperator {
		// A plain nested document: literal equality
		ff.crits = append(ff.crits, criterion{op: "eq", operand: value})
		return ff, nil
	}
	sort.Strings(opNames)

	for _, name := range opNames {
		op := strings.TrimPrefix(name, "$")
		if !filterOperators[op] {
			return fieldFilter{}, fmt.Errorf("field %s: unsupported operator %s: %w", field, name, dberrors.ErrInvalidQuery)
		}
		operand := opMap[name]
		switch op {
		case "in", "nin":
			if _, ok := operand.([]interface{}); !ok {
				return fieldFilter{}, fmt.Errorf("field %s: %s expects a list: %w", field, op, dberrors.ErrInvalidQuery)
			}
		case "exists":
			if _, ok := operand.(bool); !ok {
				return fieldFilter{}, fmt.Errorf("field %s: %s expects a boolean: %w", field, op, dberrors.ErrInvalidQuery)
			}
		}
		ff.crits = append(ff.crits, criterion{op: op, operand: operand})
	}
	return ff, nil
}

// Matches evaluates the full filter against a document body. This is
// the residual predicate: it is applied to every candidate regardless
// of which access path produced it.
func (f *Filter) Matches(body map[string]interface{}) bool {
	for _, sub := range f.and {
		if !sub.Matches(body) {
			return false
		}
	}
	if len(f.or) > 0 {
		anyMatch := false
		for _, sub := range f.or {
			if sub.Matches(body) {
				anyMatch = true
				break
			}
		}
		if !anyMatch {
			return false
		}
	}
	if f.not != nil && f.not.Matches(body) {
		return false
	}
	for _, ff := range f.fields {
		value, present := body[ff.field]
		for _, c := range ff.crits {
			if !evalCriterion(c, value, present) {
				return false
			}
		}
	}
	return true
}

// evalCriterion applies one operator. Comparison and equality operators
// require the field to be present, matching what an index scan over the
// field would produce; "ne" and "nin" are their negations and so also
// match absent fields.
func evalCriterion(c criterion, value interface{}, present bool) bool {
	switch c.op {
	case "eq":
		return present && keys.Equal(value, c.operand)
	case "ne":
		return !present || !keys.Equal(value, c.operand)
	case "gt":
		return present && keys.Compare(value, c.operand) > 0
	case "gte":
		return present && keys.Compare(value, c.operand) >= 0
	case "lt":
		return present && keys.Compare(value, c.operand) < 0
	case "lte":
		return present && keys.Compare(value, c.operand) <= 0
	case "in":
		if !present {
			return false
		}
		for _, item := range c.operand.([]interface{}) {
			if keys.Equal(value, item) {
				return true
			}
		}
		return false
	case "nin":
		if !present {
			return true
		}
		for _, item := range c.operand.([]interface{}) {
			if keys.Equal(value, item) {
				return false
			}
		}
		return true
	case "exists":
		return present == c.operand.(bool)
	default:
		return false
	}
}

// Signature is a deterministic rendering of the normalized filter, used
// as part of the query cache key
func (f *Filter) Signature() string {
	return f.sig
}
