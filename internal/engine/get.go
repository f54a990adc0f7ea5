package engine

import (
	"context"
	"strings"

	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/schemamodel"
)

// GetResult is the page of rows returned by Get, plus a continuation token
// when more rows remain.
type GetResult struct {
	Items []Row
	Next  string
}

// Get executes a predicate-bound read against domain/table, filtering
// tombstones, decorating _ttl when requested, and converting every
// attribute through the schema's registered conversions.
func (db *DB) Get(ctx context.Context, domain, table string, q querybuilder.Query) (*GetResult, error) {
	req, err := db.makeInternalRequest(ctx, domain, table, q, "")
	if err != nil {
		return nil, err
	}
	if req.Schema == nil {
		return nil, notFoundf("no schema for table %q", table)
	}
	if q.Index != "" {
		req.ColumnFamily = "idx_" + q.Index + "_ever"
	}

	built, err := querybuilder.BuildGetQuery(req)
	if err != nil {
		return nil, err
	}

	pageState, err := decodePageState(q.Next)
	if err != nil {
		return nil, err
	}

	iter := db.exec.Iter(ctx, req.Keyspace, Statement{CQL: built.CQL, Params: built.Params}, ExecOptions{
		Consistency: req.Consistency,
		FetchSize:   q.Limit,
		PageState:   pageState,
	})
	defer iter.Close()

	var items []Row
	raw := Row{}
	for iter.Next(raw) {
		row := cloneRow(raw)
		if row[schemamodel.DelAttribute] != nil {
			continue
		}
		if q.WithTTL {
			decorateTTL(row)
		}
		converted, err := convertRow(req.Schema, row)
		if err != nil {
			return nil, err
		}
		items = append(items, converted)
	}
	if err := iter.Err(); err != nil {
		return nil, driverErrorf(err, "get %s.%s", domain, table)
	}

	return &GetResult{Items: items, Next: encodePageState(iter.PageState())}, nil
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// decorateTTL sets _ttl to the maximum of every per-attribute _ttl_<attr>
// decoration the projection requested, then strips the per-attribute
// columns so only the summary remains.
func decorateTTL(row Row) {
	var max interface{}
	var maxN int64
	for name, v := range row {
		if !strings.HasPrefix(name, "_ttl_") {
			continue
		}
		delete(row, name)
		n, ok := toInt64(v)
		if !ok || n == 0 {
			continue
		}
		if max == nil || n > maxN {
			max, maxN = v, n
		}
	}
	if max != nil {
		row["_ttl"] = max
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case *int:
		if n == nil {
			return 0, false
		}
		return int64(*n), true
	}
	return 0, false
}

// convertRow applies the schema's per-attribute read conversions, skipping
// attributes whose name begins with "_" (the tombstone/domain/tid columns)
// except the _ttl decoration.
func convertRow(info *schemamodel.SchemaInfo, row Row) (Row, error) {
	out := make(Row, len(row))
	for name, v := range row {
		if strings.HasPrefix(name, "_") && name != "_ttl" {
			continue
		}
		if c, ok := info.Conversions[name]; ok && c.Read != nil {
			cv, err := c.Read(v)
			if err != nil {
				return nil, err
			}
			out[name] = cv
			continue
		}
		out[name] = v
	}
	return out, nil
}
