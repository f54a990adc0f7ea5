package querybuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/axonops/revtable/internal/ident"
	"github.com/axonops/revtable/internal/schemamodel"
)

// BuildPutQuery compiles an INSERT or UPDATE for req, choosing between the
// two forms based on whether any non-key, non-static attribute is set.
func BuildPutQuery(req *InternalRequest) (*Built, error) {
	info := req.Schema

	attrs := map[string]interface{}{}
	for k, v := range req.Query.Attributes {
		attrs[k] = v
	}
	if req.ColumnFamily != "meta" {
		attrs[schemamodel.DomainAttribute] = req.Domain
	}

	for name := range attrs {
		if strings.HasPrefix(name, "_ttl") {
			continue
		}
		if _, ok := info.Schema.Attributes[name]; !ok {
			return nil, queryErrorf("attribute %q is not declared on this table", name)
		}
	}
	for _, key := range info.IKeys {
		if v, ok := attrs[key]; !ok || v == nil {
			return nil, queryErrorf("primary-key attribute %q is required", key)
		}
	}

	hasNonIndexValue := false
	for name, v := range attrs {
		if _, isKey := info.IKeyMap[name]; isKey {
			continue
		}
		if _, isStatic := info.StaticKeyMap[name]; isStatic {
			continue
		}
		if v != nil {
			hasNonIndexValue = true
		}
	}

	ifCond, err := classifyIf(req)
	if err != nil {
		return nil, err
	}

	// IF NOT EXISTS is a valid clause on INSERT regardless of how many
	// non-key attributes it carries (it is the "create with data" lightweight
	// transaction), so it always takes the INSERT form; UPDATE has no
	// IF NOT EXISTS clause in CQL at all.
	if ifCond.kind == ifNotExists || (!hasNonIndexValue && ifCond.kind != ifPredicate) {
		return buildInsert(req, attrs, ifCond)
	}
	return buildUpdate(req, attrs, ifCond)
}

type ifKind int

const (
	ifNone ifKind = iota
	ifNotExists
	ifPredicate
)

type ifClause struct {
	kind ifKind
	pred map[string]interface{}
}

func classifyIf(req *InternalRequest) (ifClause, error) {
	switch v := req.Query.If.(type) {
	case nil:
		return ifClause{kind: ifNone}, nil
	case string:
		if v == "not exists" {
			return ifClause{kind: ifNotExists}, nil
		}
		return ifClause{}, queryErrorf("unsupported if value %q", v)
	case map[string]interface{}:
		return ifClause{kind: ifPredicate, pred: v}, nil
	default:
		return ifClause{}, queryErrorf("unsupported if value of type %T", v)
	}
}

func buildInsert(req *InternalRequest, attrs map[string]interface{}, ifc ifClause) (*Built, error) {
	info := req.Schema

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, 0, len(names))
	placeholders := make([]string, 0, len(names))
	params := make([]interface{}, 0, len(names))
	for _, name := range names {
		v, err := writeValue(&conversionSource{Conversions: info.Conversions}, name, attrs[name])
		if err != nil {
			return nil, err
		}
		cols = append(cols, ident.Quote(name))
		placeholders = append(placeholders, "?")
		params = append(params, v)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s.%s (%s) VALUES (%s)",
		ident.Quote(req.Keyspace), ident.Quote(req.ColumnFamily),
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if ifc.kind == ifNotExists {
		sb.WriteString(" IF NOT EXISTS")
	}

	using, usingParams, err := buildUsingClause(req, ifc)
	if err != nil {
		return nil, err
	}
	sb.WriteString(using)
	params = append(params, usingParams...)

	return &Built{CQL: sb.String(), Params: params}, nil
}

// buildUpdate never sees ifNotExists: BuildPutQuery routes every IF NOT
// EXISTS write through buildInsert instead, since UPDATE has no such clause.
func buildUpdate(req *InternalRequest, attrs map[string]interface{}, ifc ifClause) (*Built, error) {
	info := req.Schema

	var using string
	var usingParams []interface{}
	var err error
	if ifc.kind != ifPredicate {
		using, usingParams, err = buildUsingClause(req, ifc)
		if err != nil {
			return nil, err
		}
	} else if req.Query.HasTimestamp {
		return nil, queryErrorf("USING TIMESTAMP cannot be combined with a conditional UPDATE")
	}

	setNames := make([]string, 0, len(attrs))
	for name := range attrs {
		if _, isKey := info.IKeyMap[name]; isKey {
			continue
		}
		setNames = append(setNames, name)
	}
	sort.Strings(setNames)

	var sets []string
	var setParams []interface{}
	for _, name := range setNames {
		v, err := writeValue(&conversionSource{Conversions: info.Conversions}, name, attrs[name])
		if err != nil {
			return nil, err
		}
		sets = append(sets, ident.Quote(name)+" = ?")
		setParams = append(setParams, v)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s.%s", ident.Quote(req.Keyspace), ident.Quote(req.ColumnFamily))
	sb.WriteString(using)
	// usingParams' placeholders appear in the USING clause, which precedes
	// SET in the rendered CQL, so they must be bound first.
	params := append(append([]interface{}{}, usingParams...), setParams...)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))

	keyAttrs := map[string]interface{}{}
	for _, key := range info.IKeys {
		keyAttrs[key] = attrs[key]
	}
	cond, condParams, err := buildCondition(keyAttrs, &conversionSource{Conversions: info.Conversions}, false)
	if err != nil {
		return nil, err
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(cond)
	params = append(params, condParams...)

	if ifc.kind == ifPredicate {
		ifCQL, ifParams, err := buildCondition(ifc.pred, &conversionSource{Conversions: info.Conversions}, false)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" IF ")
		sb.WriteString(ifCQL)
		params = append(params, ifParams...)
	}

	return &Built{CQL: sb.String(), Params: params}, nil
}

// buildUsingClause renders "USING TIMESTAMP t AND TTL n", combining both
// clauses when present. TIMESTAMP is suppressed under a conditional write.
func buildUsingClause(req *InternalRequest, ifc ifClause) (string, []interface{}, error) {
	var parts []string
	var params []interface{}

	if req.Query.HasTimestamp && ifc.kind == ifNone {
		// req.Query.Timestamp is already in driver microseconds by the time
		// it reaches the builder; the engine performs the ms->µs scaling.
		parts = append(parts, fmt.Sprintf("TIMESTAMP %d", req.Query.Timestamp))
	}
	if req.HasTTL {
		parts = append(parts, "TTL ?")
		params = append(params, req.TTL)
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " USING " + strings.Join(parts, " AND "), params, nil
}
