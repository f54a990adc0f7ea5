package querybuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/axonops/revtable/internal/ident"
	"github.com/axonops/revtable/internal/schemamodel"
)

// BuildGetQuery compiles a SELECT for req, honoring projection, distinct,
// ordering, domain injection and column-level TTL decoration.
func BuildGetQuery(req *InternalRequest) (*Built, error) {
	info := req.Schema
	keyMap, err := keyAttributeSet(req)
	if err != nil {
		return nil, err
	}

	cols, err := projectionColumns(req)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if req.Query.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(cols, ", "))
	fmt.Fprintf(&sb, " FROM %s.%s", ident.Quote(req.Keyspace), ident.Quote(req.ColumnFamily))

	predAttrs := map[string]interface{}{}
	for k, v := range req.Query.Attributes {
		predAttrs[k] = v
	}
	if req.ColumnFamily != "meta" {
		if _, present := predAttrs[schemamodel.DomainAttribute]; !present {
			predAttrs[schemamodel.DomainAttribute] = req.Domain
		}
	}

	for name := range predAttrs {
		if !keyMap[name] {
			return nil, queryErrorf("predicate attribute %q is not a key of this table/index", name)
		}
	}

	cond, params, err := buildCondition(predAttrs, &conversionSource{Conversions: info.Conversions}, false)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(cond)
	}

	orderClause, err := buildOrderClause(req)
	if err != nil {
		return nil, err
	}
	if orderClause != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderClause)
	}

	if req.Query.Options.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", req.Query.Options.Limit)
	}

	return &Built{CQL: sb.String(), Params: params}, nil
}

// keyAttributeSet returns every attribute name usable in a predicate: the
// primary index's keys, or a secondary index's keys when query.Index names
// one.
func keyAttributeSet(req *InternalRequest) (map[string]bool, error) {
	info := req.Schema
	out := map[string]bool{}
	if req.Query.Index == "" {
		for k := range info.IKeyMap {
			out[k] = true
		}
		for k := range info.StaticKeyMap {
			out[k] = true
		}
		return out, nil
	}
	idx, ok := info.Schema.SecondaryIndexes[req.Query.Index]
	if !ok {
		return nil, queryErrorf("unknown secondary index %q", req.Query.Index)
	}
	for _, el := range idx.Elements {
		out[el.Attribute] = true
	}
	out[schemamodel.DomainAttribute] = true
	for _, attr := range info.IKeys {
		out[attr] = true
	}
	return out, nil
}

// projectionColumns resolves the SELECT column list, honoring an explicit
// proj (string or list) or defaulting to every declared attribute, and
// appending TTL(...) decorations when withTTL is requested.
func projectionColumns(req *InternalRequest) ([]string, error) {
	info := req.Schema

	var names []string
	switch p := req.Query.Proj.(type) {
	case nil:
		for name := range info.Schema.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
	case string:
		names = []string{p}
	case []string:
		names = append(names, p...)
	case []interface{}:
		for _, v := range p {
			s, ok := v.(string)
			if !ok {
				return nil, queryErrorf("proj entries must be strings")
			}
			names = append(names, s)
		}
	default:
		return nil, queryErrorf("proj must be a string or list of strings")
	}

	cols := make([]string, 0, len(names)*2)
	for _, name := range names {
		cols = append(cols, ident.Quote(name))
		if req.Query.WithTTL && isTTLEligible(info, name) {
			cols = append(cols, fmt.Sprintf("TTL(%s) AS %s", ident.Quote(name), ident.Quote("_ttl_"+name)))
		}
	}
	return cols, nil
}

func isTTLEligible(info *schemamodel.SchemaInfo, name string) bool {
	if _, isKey := info.IKeyMap[name]; isKey {
		return false
	}
	t, ok := info.Schema.Attributes[name]
	if !ok {
		return false
	}
	return !t.Set
}

// buildOrderClause validates that every requested ordering attribute is a
// range element and that the resulting direction is uniform (Cassandra only
// allows a single reversal of the clustering order per query).
func buildOrderClause(req *InternalRequest) (string, error) {
	if len(req.Query.Order) == 0 {
		return "", nil
	}
	info := req.Schema

	names := make([]string, 0, len(req.Query.Order))
	for name := range req.Query.Order {
		names = append(names, name)
	}
	sort.Strings(names)

	var reversedSeen, forwardSeen bool
	var clauses []string
	for _, name := range names {
		dir := req.Query.Order[name]
		el, ok := info.IKeyMap[name]
		if !ok || el.Kind != schemamodel.KindRange {
			return "", queryErrorf("order attribute %q is not a range element", name)
		}
		reversed := (dir == "asc" && el.Order == schemamodel.Desc) || (dir == "desc" && el.Order == schemamodel.Asc)
		if reversed {
			reversedSeen = true
		} else {
			forwardSeen = true
		}
		clauses = append(clauses, ident.Quote(name)+" "+strings.ToUpper(dir))
	}
	if reversedSeen && forwardSeen {
		return "", queryErrorf("order must uniformly reverse or preserve the natural clustering order")
	}
	return strings.Join(clauses, ", "), nil
}
