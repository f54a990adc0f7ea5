package querybuilder

import (
	"sort"
	"strings"

	"github.com/axonops/revtable/internal/convert"
	"github.com/axonops/revtable/internal/ident"
)

// operatorClause is a single comparison in a predicate's operator object.
type operatorClause struct {
	op  string
	val interface{}
}

// buildCondition compiles an attribute->value/operator mapping into an
// AND-joined CQL fragment and its bound parameters, in deterministic
// (sorted-attribute) binding order. noConvert skips per-attribute type
// conversion, as used by retention-policy rewrites.
func buildCondition(attrs map[string]interface{}, info *conversionSource, noConvert bool) (string, []interface{}, error) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var clauses []string
	var params []interface{}

	for _, name := range names {
		raw := attrs[name]
		ops, err := asOperators(raw)
		if err != nil {
			return "", nil, err
		}
		for _, oc := range ops {
			v := oc.val
			if !noConvert {
				v, err = writeValue(info, name, v)
				if err != nil {
					return "", nil, err
				}
			}
			switch oc.op {
			case "eq":
				clauses = append(clauses, ident.Quote(name)+" = ?")
				params = append(params, v)
			case "lt":
				clauses = append(clauses, ident.Quote(name)+" < ?")
				params = append(params, v)
			case "gt":
				clauses = append(clauses, ident.Quote(name)+" > ?")
				params = append(params, v)
			case "le":
				clauses = append(clauses, ident.Quote(name)+" <= ?")
				params = append(params, v)
			case "ge":
				clauses = append(clauses, ident.Quote(name)+" >= ?")
				params = append(params, v)
			case "between":
				pair, ok := v.([2]interface{})
				if !ok {
					return "", nil, queryErrorf("attribute %q: between requires a two-element range", name)
				}
				clauses = append(clauses, ident.Quote(name)+" >= ? AND "+ident.Quote(name)+" <= ?")
				params = append(params, pair[0], pair[1])
			default:
				return "", nil, queryErrorf("attribute %q: unknown operator %q", name, oc.op)
			}
		}
	}

	return strings.Join(clauses, " AND "), params, nil
}

// asOperators normalizes a predicate value into its operator clauses. A bare
// (non-map) value is shorthand for {eq: value}.
func asOperators(raw interface{}) ([]operatorClause, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return []operatorClause{{op: "eq", val: raw}}, nil
	}

	var out []operatorClause
	for op, v := range m {
		if op == "between" {
			list, ok := v.([]interface{})
			if !ok || len(list) != 2 {
				return nil, queryErrorf("between requires a two-element array")
			}
			out = append(out, operatorClause{op: "between", val: [2]interface{}{list[0], list[1]}})
			continue
		}
		switch op {
		case "eq", "lt", "gt", "le", "ge":
			out = append(out, operatorClause{op: op, val: v})
		default:
			return nil, queryErrorf("unknown operator %q", op)
		}
	}
	if len(out) == 0 {
		return nil, queryErrorf("empty operator object")
	}
	return out, nil
}

// conversionSource is the minimal schema-info surface buildCondition needs;
// kept narrow so callers can supply a nil info for noConvert paths.
type conversionSource struct {
	Conversions map[string]convert.Conversion
}

func writeValue(info *conversionSource, name string, v interface{}) (interface{}, error) {
	if info == nil {
		return v, nil
	}
	c, ok := info.Conversions[name]
	if !ok || c.Write == nil {
		return v, nil
	}
	if pair, ok := v.([2]interface{}); ok {
		lo, err := c.Write(pair[0])
		if err != nil {
			return nil, queryErrorf("attribute %q: %v", name, err)
		}
		hi, err := c.Write(pair[1])
		if err != nil {
			return nil, queryErrorf("attribute %q: %v", name, err)
		}
		return [2]interface{}{lo, hi}, nil
	}
	cv, err := c.Write(v)
	if err != nil {
		return nil, queryErrorf("attribute %q: %v", name, err)
	}
	return cv, nil
}
