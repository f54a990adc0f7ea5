package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/schemamodel"
)

// Delete logically deletes a row by writing a new tombstone version: _del
// is set to a fresh tid, preserving MVCC ordering so readers can filter it
// out by _del without disturbing earlier revisions. Physical DELETE is
// reserved for maintenance tooling.
func (db *DB) Delete(ctx context.Context, domain, table string, q querybuilder.Query) (*PutResult, error) {
	tombstone, err := uuid.NewUUID()
	if err != nil {
		return nil, driverErrorf(err, "generating tombstone tid")
	}

	q.Attributes = cloneAttrs(q.Attributes)
	q.Attributes[schemamodel.DelAttribute] = tombstone.String()

	return db.Put(ctx, domain, table, q)
}

func cloneAttrs(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
