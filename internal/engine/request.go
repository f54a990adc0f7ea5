package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/axonops/revtable/internal/ident"
	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/schemamodel"
)

var validConsistency = map[string]bool{"all": true, "localOne": true, "localQuorum": true}

// metaCQL is the hand-written SELECT against the meta column family, issued
// before a schema-info is known, so it cannot route through the query
// builder (which requires one).
const metaCQL = `SELECT value, tid FROM %s.meta WHERE key = ? LIMIT 1`

// resolveKeyspace derives and caches the keyspace name for (domain, table).
func (db *DB) resolveKeyspace(domain, table string) (string, error) {
	if ks, ok := db.keyspaceNames.Get(domain, table); ok {
		return ks, nil
	}
	group, err := db.groups.Resolve(domain)
	if err != nil {
		return "", err
	}
	ks := ident.KeyspaceName(ident.ReverseDomain(group), table)
	db.keyspaceNames.Set(domain, table, ks)
	return ks, nil
}

// makeInternalRequest resolves the keyspace, applies consistency defaults,
// extracts _ttl from the attribute set into the request's ttl slot, and
// ensures the schema cache is populated for this table.
func (db *DB) makeInternalRequest(ctx context.Context, domain, table string, q querybuilder.Query, consistency string) (*querybuilder.InternalRequest, error) {
	ks, err := db.resolveKeyspace(domain, table)
	if err != nil {
		return nil, err
	}

	if q.Consistency != "" {
		if !validConsistency[q.Consistency] {
			return nil, queryErrorf("unsupported consistency %q", q.Consistency)
		}
		consistency = q.Consistency
	}
	if consistency == "" {
		consistency = db.cfg.DefaultConsistency
	}

	req := &querybuilder.InternalRequest{
		Domain:       domain,
		Table:        table,
		Keyspace:     ks,
		Query:        q,
		Consistency:  consistency,
		ColumnFamily: "data",
	}

	if ttl, ok := q.Attributes["_ttl"]; ok {
		if n, ok := toInt(ttl); ok {
			req.TTL = n
			req.HasTTL = true
		}
		delete(req.Query.Attributes, "_ttl")
	}

	info, err := db.fetchSchema(ctx, ks)
	if err != nil {
		return nil, err
	}
	req.Schema = info
	return req, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// fetchSchema returns the cached schema-info for keyspace, populating the
// cache from the persisted meta row on a miss. A missing keyspace or meta
// column family is not an error here: the caller treats the table as not
// yet created.
func (db *DB) fetchSchema(ctx context.Context, keyspace string) (*schemamodel.SchemaInfo, error) {
	if info, ok := db.schemaCache.Get(keyspace); ok {
		return info, nil
	}

	// Concurrent misses for the same keyspace collapse into one meta-row
	// read; every caller waiting on it gets the same result.
	v, err, _ := db.schemaFetch.Do(keyspace, func() (interface{}, error) {
		return db.fetchSchemaUncached(ctx, keyspace)
	})
	if err != nil {
		return nil, err
	}
	info, _ := v.(*schemamodel.SchemaInfo)
	return info, nil
}

func (db *DB) fetchSchemaUncached(ctx context.Context, keyspace string) (*schemamodel.SchemaInfo, error) {
	iter := db.exec.Iter(ctx, keyspace, Statement{
		CQL:    metaCQLFor(keyspace),
		Params: []interface{}{"schema"},
	}, ExecOptions{Consistency: db.cfg.DefaultConsistency, FetchSize: 1})
	defer iter.Close()

	row := Row{}
	if !iter.Next(row) {
		if err := iter.Err(); err != nil && !isNotExist(err) {
			return nil, driverErrorf(err, "fetching schema for keyspace %s", keyspace)
		}
		return nil, nil
	}

	doc, _ := row["value"].(string)
	schema, err := schemamodel.ValidateAndNormalizeJSON([]byte(doc))
	if err != nil {
		return nil, err
	}
	info, err := schemamodel.MakeSchemaInfo(schema, false)
	if err != nil {
		return nil, err
	}
	db.schemaCache.Set(keyspace, info)
	return info, nil
}

func metaCQLFor(keyspace string) string {
	return strings.Replace(metaCQL, "%s", ident.Quote(keyspace), 1)
}

// isNotExist reports whether err indicates a missing keyspace or column
// family, as opposed to a genuine driver failure.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unconfigured table") ||
		strings.Contains(msg, "Keyspace") && strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "does not exist")
}

// decodePageState decodes the caller-supplied base64 "next" token.
func decodePageState(next string) ([]byte, error) {
	if next == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(next)
	if err != nil {
		return nil, queryErrorf("invalid page token")
	}
	return b, nil
}

func encodePageState(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func queryErrorf(format string, args ...interface{}) error {
	return &querybuilder.QueryError{Msg: fmt.Sprintf(format, args...)}
}
