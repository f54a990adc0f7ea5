package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/axonops/revtable/internal/ident"
	"github.com/axonops/revtable/internal/indexer"
	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/retention"
	"github.com/axonops/revtable/internal/schemamodel"
)

// startBackgroundUpdates kicks off the post-write maintenance pass for one
// row revision: rebuilding secondary indexes over the sibling revisions
// around the write, and applying the table's revision retention policy. It
// never blocks the caller and never surfaces an error to it; failures are
// logged from the pool worker. A table with no secondary indexes and an
// "all" retention policy has nothing for this pass to do. Submission to the
// bounded pool itself happens off the caller's goroutine, so a momentarily
// full pool still never blocks the write path.
func (db *DB) startBackgroundUpdates(req *querybuilder.InternalRequest, tid uuid.UUID) {
	info := req.Schema
	if len(info.Schema.SecondaryIndexes) == 0 && info.Schema.RevisionRetentionPolicy.Kind == schemamodel.RetentionAll {
		return
	}

	go func() {
		db.bgPool.Go(func() error {
			if err := db.runBackgroundUpdates(context.Background(), req, tid); err != nil {
				db.log.Warn("background update failed", "domain", req.Domain, "table", req.Table, "error", err)
			}
			return nil
		})
	}()
}

// runBackgroundUpdates walks the sibling revisions of the just-written row:
// a newer window (the row itself plus at most one newer sibling, ascending)
// establishes the IndexRebuilder's comparison baseline before the just-
// written row is itself retention-checked at seq 0; an older window
// (descending, bounded by cfg.OlderWindowLimit) then continues both passes
// with an incrementing seq.
func (db *DB) runBackgroundUpdates(ctx context.Context, req *querybuilder.InternalRequest, reqTid uuid.UUID) error {
	info := req.Schema
	rebuilder := indexer.New(db, db.log)
	retentionMgr := retention.New(db, db.log)

	keyPred := map[string]interface{}{}
	for attr := range info.IKeyMap {
		if attr == info.TidAttribute {
			continue
		}
		if v, ok := req.Query.Attributes[attr]; ok {
			keyPred[attr] = v
		}
	}
	proj := revisionProjection(info)

	newerRows, err := db.fetchRevisionWindow(ctx, req, keyPred, proj,
		map[string]interface{}{info.TidAttribute: map[string]interface{}{"ge": reqTid.String()}}, "asc", 2)
	if err != nil {
		return err
	}
	for i, j := 0, len(newerRows)-1; i < j; i, j = i+1, j-1 {
		newerRows[i], newerRows[j] = newerRows[j], newerRows[i]
	}

	var reqRow map[string]interface{}
	for _, row := range newerRows {
		tidMicros, tidErr := rowTidMicros(row, info.TidAttribute)
		if tidErr != nil {
			continue
		}
		rebuilder.Process(ctx, req.Keyspace, info, row, tidMicros)
		if asString(row[info.TidAttribute]) == reqTid.String() {
			reqRow = row
		}
	}
	if reqRow == nil {
		reqRow = map[string]interface{}{}
		for k, v := range req.Query.Attributes {
			reqRow[k] = v
		}
	}
	retentionMgr.Apply(ctx, req.Domain, req.Table, info, reqRow, 0, reqTid)

	olderRows, err := db.fetchRevisionWindow(ctx, req, keyPred, proj,
		map[string]interface{}{info.TidAttribute: map[string]interface{}{"lt": reqTid.String()}}, "desc", db.cfg.OlderWindowLimit)
	if err != nil {
		return err
	}

	seq := 1
	for _, row := range olderRows {
		tidMicros, tidErr := rowTidMicros(row, info.TidAttribute)
		if tidErr != nil {
			seq++
			continue
		}
		rebuilder.Process(ctx, req.Keyspace, info, row, tidMicros)
		if rowTid, parseErr := uuid.Parse(asString(row[info.TidAttribute])); parseErr == nil {
			retentionMgr.Apply(ctx, req.Domain, req.Table, info, row, seq, rowTid)
		}
		seq++
	}
	return nil
}

// fetchRevisionWindow runs one bounded, ordered scan of the sibling
// revisions for a primary key, swallowing a missing-table error into an
// empty result (a write may be the table's first row).
func (db *DB) fetchRevisionWindow(ctx context.Context, req *querybuilder.InternalRequest, keyPred map[string]interface{}, proj []string, extra map[string]interface{}, dir string, limit int) ([]map[string]interface{}, error) {
	info := req.Schema
	attrs := make(map[string]interface{}, len(keyPred)+len(extra))
	for k, v := range keyPred {
		attrs[k] = v
	}
	for k, v := range extra {
		attrs[k] = v
	}

	winReq := &querybuilder.InternalRequest{
		Domain:       req.Domain,
		Table:        req.Table,
		Keyspace:     req.Keyspace,
		Schema:       info,
		ColumnFamily: "data",
		Query: querybuilder.Query{
			Attributes: attrs,
			Proj:       proj,
			Order:      map[string]string{info.TidAttribute: dir},
			Options:    querybuilder.QueryOptions{Limit: limit},
			WithTTL:    true,
		},
	}
	built, err := querybuilder.BuildGetQuery(winReq)
	if err != nil {
		return nil, err
	}

	iter := db.exec.Iter(ctx, req.Keyspace, Statement{CQL: built.CQL, Params: built.Params},
		ExecOptions{Consistency: db.cfg.DefaultConsistency, FetchSize: db.cfg.BackgroundPageSize})
	defer iter.Close()

	var rows []map[string]interface{}
	for {
		row := Row{}
		if !iter.Next(row) {
			break
		}
		decorateTTL(row)
		cp := make(map[string]interface{}, len(row))
		for k, v := range row {
			cp[k] = v
		}
		rows = append(rows, cp)
	}
	if iterErr := iter.Err(); iterErr != nil {
		if isNotExist(iterErr) {
			return rows, nil
		}
		return nil, driverErrorf(iterErr, "fetching revision window for %s.%s", req.Domain, req.Table)
	}
	return rows, nil
}

// revisionProjection is the column list a background pass needs: the
// tombstone marker, every primary-key attribute, every attribute referenced
// by a secondary index, the tid itself, and one plain non-key attribute to
// read the row's existing grace TTL from (every non-key column a single Put
// or RewriteWithTTL call sets shares the same TTL, so any one of them is
// representative).
func revisionProjection(info *schemamodel.SchemaInfo) []string {
	set := map[string]bool{schemamodel.DelAttribute: true, info.TidAttribute: true}
	for _, k := range info.IKeys {
		set[k] = true
	}
	for attr := range info.AttributeIndexes {
		set[attr] = true
	}
	if ttlAttr, ok := firstTTLEligibleAttribute(info); ok {
		set[ttlAttr] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// firstTTLEligibleAttribute returns the lexicographically first attribute
// that is neither a key nor a static column nor a set, so it is eligible
// for a CQL TTL() projection (see querybuilder's isTTLEligible).
func firstTTLEligibleAttribute(info *schemamodel.SchemaInfo) (string, bool) {
	names := make([]string, 0, len(info.Schema.Attributes))
	for name := range info.Schema.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, isKey := info.IKeyMap[name]; isKey {
			continue
		}
		if _, isStatic := info.StaticKeyMap[name]; isStatic {
			continue
		}
		if info.Schema.Attributes[name].Set {
			continue
		}
		return name, true
	}
	return "", false
}

func rowTidMicros(row map[string]interface{}, tidAttr string) (int64, error) {
	u, err := uuid.Parse(asString(row[tidAttr]))
	if err != nil {
		return 0, err
	}
	return tidMicroseconds(u), nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// WriteIndexRow implements indexer.Writer: a plain parameterized INSERT
// against the index's "_ever" column family, dated at the revision's own
// write timestamp so out-of-order rebuilds still converge.
func (db *DB) WriteIndexRow(ctx context.Context, keyspace, columnFamily string, attrs map[string]interface{}, writeTimestampUs int64) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	params := make([]interface{}, len(names))
	for i, name := range names {
		cols[i] = ident.Quote(name)
		placeholders[i] = "?"
		params[i] = attrs[name]
	}

	cql := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s) USING TIMESTAMP %d",
		ident.Quote(keyspace), ident.Quote(columnFamily), strings.Join(cols, ", "), strings.Join(placeholders, ", "), writeTimestampUs)

	return db.exec.Exec(ctx, keyspace, Statement{CQL: cql, Params: params}, ExecOptions{Consistency: db.cfg.DefaultConsistency})
}

// RewriteWithTTL implements retention.Rewriter by re-running the row
// through Put with a fresh _ttl attribute, at the current write clock.
func (db *DB) RewriteWithTTL(ctx context.Context, domain, table string, attrs map[string]interface{}, ttl int) error {
	q := querybuilder.Query{Attributes: cloneAttrs(attrs)}
	q.Attributes["_ttl"] = ttl
	_, err := db.Put(ctx, domain, table, q)
	return err
}
