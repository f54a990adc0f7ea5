package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/retention"
	"github.com/axonops/revtable/internal/schemamodel"
)

// S1 — simple versioned table, get by between: a row keyed by (key, tid desc)
// is found by a BETWEEN predicate bracketing its tid.
func TestScenarioS1GetByBetween(t *testing.T) {
	exec := &fakeExec{}
	db := newTestDB(t, exec)

	schema := &schemamodel.Schema{
		Table: "simple-table",
		Attributes: map[string]schemamodel.AttributeType{
			"key":       {Base: schemamodel.TypeString},
			"latestTid": {Base: schemamodel.TypeTimeUUID},
			"tid":       {Base: schemamodel.TypeTimeUUID},
			"body":      {Base: schemamodel.TypeBlob},
		},
		Index: []schemamodel.IndexElement{
			schemamodel.Hash("key"),
			schemamodel.Static("latestTid"),
			schemamodel.Range("tid", schemamodel.Desc),
		},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{Kind: schemamodel.RetentionAll},
	}
	info := primeSchema(t, db, "tenant1", "simple-table", schema)
	require.Equal(t, "tid", info.TidAttribute, "an explicit desc timeuuid range element is adopted as the version column")

	t1, err := uuid.NewUUID()
	require.NoError(t, err)

	exec.iterQueue = [][]Row{{
		{"key": "testing", "tid": t1.String(), "latestTid": nil, "body": nil},
	}}

	// loTid/hiTid stand in for T1-30d and T1+2min: what matters for this
	// predicate is that they bracket t1, not their exact offsets.
	loTid, err := uuid.NewUUID()
	require.NoError(t, err)
	hiTid, err := uuid.NewUUID()
	require.NoError(t, err)

	result, err := db.Get(context.Background(), "tenant1", "simple-table", querybuilder.Query{
		Attributes: map[string]interface{}{
			"key": "testing",
			"tid": map[string]interface{}{"between": []interface{}{loTid.String(), hiTid.String()}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, t1.String(), result.Items[0]["tid"])
}

// S2 — static column visibility: two versions of the same partition both
// report the identical static column.
func TestScenarioS2StaticColumnVisibility(t *testing.T) {
	exec := &fakeExec{}
	db := newTestDB(t, exec)

	schema := &schemamodel.Schema{
		Table: "simple-table",
		Attributes: map[string]schemamodel.AttributeType{
			"key":       {Base: schemamodel.TypeString},
			"latestTid": {Base: schemamodel.TypeTimeUUID},
			"tid":       {Base: schemamodel.TypeTimeUUID},
			"body":      {Base: schemamodel.TypeBlob},
		},
		Index: []schemamodel.IndexElement{
			schemamodel.Hash("key"),
			schemamodel.Static("latestTid"),
			schemamodel.Range("tid", schemamodel.Desc),
		},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{Kind: schemamodel.RetentionAll},
	}
	primeSchema(t, db, "tenant1", "simple-table", schema)

	t1, err := uuid.NewUUID()
	require.NoError(t, err)
	t2, err := uuid.NewUUID()
	require.NoError(t, err)
	latest, err := uuid.NewUUID()
	require.NoError(t, err)

	exec.iterQueue = [][]Row{{
		{"key": "test", "tid": t2.String(), "latestTid": latest.String(), "body": "<p>2</p>"},
		{"key": "test", "tid": t1.String(), "latestTid": latest.String(), "body": nil},
	}}

	result, err := db.Get(context.Background(), "tenant1", "simple-table", querybuilder.Query{
		Attributes: map[string]interface{}{"key": "test"},
		Order:      map[string]string{"tid": "desc"},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, result.Items[0]["latestTid"], result.Items[1]["latestTid"])
}

// S3 — secondary index eventual consistency: a table with primary
// [hash(key), range(tid desc)] and secondary index by_uri = [hash(uri),
// proj(body)] receives three puts of the same key, each under a different
// uri; the background pass for the latest put replays the whole sibling
// window through the rebuilder, so the index ends up with a write for
// every uri the key has ever carried, including the one it carries now.
func TestScenarioS3SecondaryIndexEventualConsistency(t *testing.T) {
	exec := &fakeExec{}
	db := newTestDB(t, exec)

	schema := &schemamodel.Schema{
		Table: "pages",
		Attributes: map[string]schemamodel.AttributeType{
			"key":  {Base: schemamodel.TypeString},
			"tid":  {Base: schemamodel.TypeTimeUUID},
			"uri":  {Base: schemamodel.TypeString},
			"body": {Base: schemamodel.TypeString},
		},
		Index: []schemamodel.IndexElement{
			schemamodel.Hash("key"),
			schemamodel.Range("tid", schemamodel.Desc),
		},
		SecondaryIndexes: map[string]schemamodel.SecondaryIndex{
			"by_uri": {Name: "by_uri", Elements: []schemamodel.IndexElement{schemamodel.Hash("uri"), schemamodel.Proj("body")}},
		},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{Kind: schemamodel.RetentionAll},
	}
	info, err := schemamodel.MakeSchemaInfo(schema, false)
	require.NoError(t, err)
	ks, err := db.resolveKeyspace("tenant1", "pages")
	require.NoError(t, err)
	db.schemaCache.Set(ks, info)

	t1, err := uuid.NewUUID()
	require.NoError(t, err)
	t2, err := uuid.NewUUID()
	require.NoError(t, err)
	t3, err := uuid.NewUUID()
	require.NoError(t, err)

	reqTid := t3
	req := &querybuilder.InternalRequest{
		Domain: "tenant1", Table: "pages", Keyspace: ks, ColumnFamily: "data", Schema: info,
		Query: querybuilder.Query{Attributes: map[string]interface{}{
			"key": "test", "uri": "uri3", "body": "body3", "tid": t3.String(),
		}},
	}

	// newer window: just the just-written (newest) row; older window:
	// the two earlier revisions, newest-first.
	exec.iterQueue = [][]Row{
		{{"key": "test", "tid": t3.String(), "uri": "uri3", "body": "body3"}},
		{
			{"key": "test", "tid": t2.String(), "uri": "uri2", "body": "body2"},
			{"key": "test", "tid": t1.String(), "uri": "uri1", "body": "body1"},
		},
	}

	err = db.runBackgroundUpdates(context.Background(), req, reqTid)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, c := range exec.calls {
		if c.kind != "exec" || !strings.Contains(c.cql, "idx_by_uri_ever") {
			continue
		}
		for _, p := range c.params {
			if s, ok := p.(string); ok {
				seen[s] = true
			}
		}
	}
	assert.True(t, seen["uri3"], "the current uri must have an index entry written")
	assert.True(t, seen["uri1"], "the rebuilder replays every sibling revision in the window, not just the latest")
	assert.True(t, seen["uri2"], "the rebuilder replays every sibling revision in the window, not just the latest")
}

// S4 — retention "latest" sets TTL: with revisionRetentionPolicy
// {type: latest, count: 2, grace_ttl: 10}, the two newest of three
// revisions of the same key are left untouched, the oldest is rewritten
// with a grace TTL, and a revision that already carries a TTL at or below
// the grace period is left alone rather than re-armed.
func TestScenarioS4RetentionLatestSetsTTL(t *testing.T) {
	schema := simpleSchema()
	schema.RevisionRetentionPolicy = schemamodel.RetentionPolicy{Kind: schemamodel.RetentionLatest, Count: 2, GraceTTL: 10}
	info, err := schemamodel.MakeSchemaInfo(schema, false)
	require.NoError(t, err)

	rw := &recordingRewriter{}
	mgr := retention.New(rw, nil)

	t1, err := uuid.NewUUID()
	require.NoError(t, err)
	t2, err := uuid.NewUUID()
	require.NoError(t, err)
	t3, err := uuid.NewUUID()
	require.NoError(t, err)

	// Rows as a WithTTL window fetch returns them: a live TTL() projection
	// column per plain attribute, exactly as decorateTTL (engine/get.go)
	// expects to fold into "_ttl" before retention ever sees the row.
	newest := Row{"shop": "acme", "sku": "1", "name": "widget3", info.TidAttribute: t3.String(), "_ttl_name": 0}
	middle := Row{"shop": "acme", "sku": "1", "name": "widget2", info.TidAttribute: t2.String(), "_ttl_name": 0}
	oldest := Row{"shop": "acme", "sku": "1", "name": "widget1", info.TidAttribute: t1.String(), "_ttl_name": 0}
	for _, row := range []Row{newest, middle, oldest} {
		decorateTTL(row)
	}

	mgr.Apply(context.Background(), "tenant1", "widgets", info, newest, 0, t3)
	mgr.Apply(context.Background(), "tenant1", "widgets", info, middle, 1, t2)
	mgr.Apply(context.Background(), "tenant1", "widgets", info, oldest, 2, t1)

	require.Len(t, rw.calls, 1, "only the revision beyond the retained count should be grace-TTLed")
	assert.Equal(t, 10, rw.calls[0].ttl)

	// A revision that already carries a TTL at or below the grace period
	// (as decorateTTL would report from a prior rewrite) must be left alone.
	rw.calls = nil
	alreadyGraced := Row{"shop": "acme", "sku": "1", "name": "widget1", info.TidAttribute: t1.String(), "_ttl_name": 5}
	decorateTTL(alreadyGraced)
	mgr.Apply(context.Background(), "tenant1", "widgets", info, alreadyGraced, 2, t1)
	assert.Empty(t, rw.calls, "a row already within the grace TTL must not be re-armed")
}

type recordingRewriter struct {
	calls []struct {
		attrs map[string]interface{}
		ttl   int
	}
}

func (r *recordingRewriter) RewriteWithTTL(ctx context.Context, domain, table string, attrs map[string]interface{}, ttl int) error {
	r.calls = append(r.calls, struct {
		attrs map[string]interface{}
		ttl   int
	}{attrs, ttl})
	return nil
}

// S5 — schema migration paths: add an attribute (201), drop an attribute
// (201), then attempt a schema edit with no version bump (400).
func TestScenarioS5SchemaMigrationPaths(t *testing.T) {
	exec := &fakeExec{}
	db := newTestDB(t, exec)

	v1 := []byte(`{"table":"widgets","version":1,"attributes":{"shop":"string","sku":"string","author":"string"},"index":[{"kind":"hash","attribute":"shop"},{"kind":"range","attribute":"sku","order":"asc"}],"revisionRetentionPolicy":{"type":"all"}}`)
	exec.iterQueue = [][]Row{{}}
	_, err := db.CreateTable(context.Background(), "tenant1", "widgets", v1)
	require.NoError(t, err)

	v2 := []byte(`{"table":"widgets","version":2,"attributes":{"shop":"string","sku":"string","author":"string","email":"string"},"index":[{"kind":"hash","attribute":"shop"},{"kind":"range","attribute":"sku","order":"asc"}],"revisionRetentionPolicy":{"type":"all"}}`)
	exec.iterQueue = [][]Row{{{"value": string(v1), "tid": "t1"}}}
	result, err := db.CreateTable(context.Background(), "tenant1", "widgets", v2)
	require.NoError(t, err)
	assert.Equal(t, 201, result.Status)

	v3 := []byte(`{"table":"widgets","version":3,"attributes":{"shop":"string","sku":"string","email":"string"},"index":[{"kind":"hash","attribute":"shop"},{"kind":"range","attribute":"sku","order":"asc"}],"revisionRetentionPolicy":{"type":"all"}}`)
	exec.iterQueue = [][]Row{{{"value": string(v2), "tid": "t2"}}}
	result, err = db.CreateTable(context.Background(), "tenant1", "widgets", v3)
	require.NoError(t, err)
	assert.Equal(t, 201, result.Status)

	vNoBump := []byte(`{"table":"widgets","version":3,"attributes":{"shop":"string","sku":"string","email":"string","phone":"string"},"index":[{"kind":"hash","attribute":"shop"},{"kind":"range","attribute":"sku","order":"asc"}],"revisionRetentionPolicy":{"type":"all"}}`)
	exec.iterQueue = [][]Row{{{"value": string(v3), "tid": "t3"}}}
	_, err = db.CreateTable(context.Background(), "tenant1", "widgets", vNoBump)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no version increment")
}

// S6 — invalid predicate: a non-key attribute in a Get's predicate fails
// with InvalidQuery and never reaches the driver.
func TestScenarioS6InvalidPredicateNeverReachesDriver(t *testing.T) {
	exec := &fakeExec{}
	db := newTestDB(t, exec)
	primeSchema(t, db, "tenant1", "widgets", simpleSchema())

	_, err := db.Get(context.Background(), "tenant1", "widgets", querybuilder.Query{
		Attributes: map[string]interface{}{"shop": "acme", "name": "widget"},
	})
	require.Error(t, err)
	var qerr *querybuilder.QueryError
	assert.ErrorAs(t, err, &qerr)
	assert.Contains(t, err.Error(), "not a key")

	for _, c := range exec.calls {
		assert.NotEqual(t, "iter", c.kind, "an invalid predicate must not reach the driver")
	}
}
