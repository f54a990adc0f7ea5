package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/revtable/internal/schemamodel"
)

func testSchema(t *testing.T) *schemamodel.SchemaInfo {
	t.Helper()
	s := &schemamodel.Schema{
		Table: "widgets",
		Attributes: map[string]schemamodel.AttributeType{
			"key":  {Base: schemamodel.TypeString},
			"tid":  {Base: schemamodel.TypeTimeUUID},
			"body": {Base: schemamodel.TypeBlob},
		},
		Index: []schemamodel.IndexElement{
			schemamodel.Hash("key"),
			schemamodel.Range("tid", schemamodel.Desc),
		},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{Kind: schemamodel.RetentionAll},
	}
	info, err := schemamodel.MakeSchemaInfo(s, false)
	require.NoError(t, err)
	return info
}

func TestBuildGetQueryInjectsDomainAndFiltersKeys(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Table:        "widgets",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"key": "testing"},
		},
	}

	built, err := BuildGetQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, `"_domain" = ?`)
	assert.Contains(t, built.CQL, `"key" = ?`)
	assert.Contains(t, built.Params, "example.com")
	assert.Contains(t, built.Params, "testing")
}

func TestBuildGetQueryRejectsNonKeyPredicate(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"body": []byte("x")},
		},
	}
	_, err := BuildGetQuery(req)
	require.Error(t, err)
	assert.IsType(t, &QueryError{}, err)
}

func TestBuildGetQueryBetweenOperator(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{
				"key": "testing",
				"tid": map[string]interface{}{"between": []interface{}{"lo", "hi"}},
			},
		},
	}
	built, err := BuildGetQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, `"tid" >= ? AND "tid" <= ?`)
}

func TestBuildGetQueryOrderClause(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"key": "testing"},
			Order:      map[string]string{"tid": "desc"},
		},
	}
	built, err := BuildGetQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, "ORDER BY")
}

func TestBuildPutQueryInsertWhenOnlyKeysSet(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"key": "testing", "tid": "11111111-1111-1111-1111-111111111111"},
		},
	}
	built, err := BuildPutQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, "INSERT INTO")
}

func TestBuildPutQueryUpdateWhenNonKeyValueSet(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{
				"key": "testing", "tid": "11111111-1111-1111-1111-111111111111",
				"body": []byte("hi"),
			},
		},
	}
	built, err := BuildPutQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, "UPDATE")
	assert.Contains(t, built.CQL, "SET")
}

func TestBuildPutQueryMissingPrimaryKeyFails(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"key": "testing"},
		},
	}
	// Missing tid, the remaining primary-key attribute.
	delete(req.Query.Attributes, "tid")
	_, err := BuildPutQuery(req)
	require.Error(t, err)
	assert.IsType(t, &QueryError{}, err)
}

func TestBuildPutQueryIfNotExists(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"key": "testing", "tid": "11111111-1111-1111-1111-111111111111"},
			If:         "not exists",
		},
	}
	built, err := BuildPutQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, "IF NOT EXISTS")
}

// A conditional create can also carry non-key attribute data in the same
// write ("create with data"); CQL's IF NOT EXISTS is a clause on INSERT, so
// this must still render as an INSERT rather than being rejected.
func TestBuildPutQueryIfNotExistsWithNonKeyData(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{
				"key": "testing", "tid": "11111111-1111-1111-1111-111111111111", "body": []byte("payload"),
			},
			If: "not exists",
		},
	}
	built, err := BuildPutQuery(req)
	require.NoError(t, err)
	assert.Contains(t, built.CQL, "INSERT INTO")
	assert.Contains(t, built.CQL, "IF NOT EXISTS")
	assert.Contains(t, built.Params, []byte("payload"))
}

func TestBuildDeleteQueryRequiresFullPrimaryKey(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "data",
		Schema:       info,
		Query: Query{
			Attributes: map[string]interface{}{"key": "testing"},
		},
	}
	_, err := BuildDeleteQuery(req)
	assert.Error(t, err)
}

func TestBuildDeleteQueryRejectsMeta(t *testing.T) {
	info := testSchema(t)
	req := &InternalRequest{
		Domain:       "example.com",
		Keyspace:     "ks",
		ColumnFamily: "meta",
		Schema:       info,
	}
	_, err := BuildDeleteQuery(req)
	assert.Error(t, err)
}

func TestBuildOptionsClause(t *testing.T) {
	clause, err := BuildOptionsClause(schemamodel.Options{
		Compression:       []schemamodel.CompressionSpec{{Algorithm: "lz4", ChunkKB: 64}},
		DefaultTimeToLive: 3600,
	})
	require.NoError(t, err)
	assert.Contains(t, clause, "LZ4Compressor")
	assert.Contains(t, clause, "default_time_to_live = 3600")
}

func TestBuildOptionsClauseEmpty(t *testing.T) {
	clause, err := BuildOptionsClause(schemamodel.Options{})
	require.NoError(t, err)
	assert.Empty(t, clause)
}
