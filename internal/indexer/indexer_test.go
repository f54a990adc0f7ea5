package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/revtable/internal/schemamodel"
)

type recordedWrite struct {
	keyspace, cf string
	attrs        map[string]interface{}
	ts           int64
}

type fakeWriter struct {
	writes []recordedWrite
}

func (w *fakeWriter) WriteIndexRow(ctx context.Context, keyspace, cf string, attrs map[string]interface{}, ts int64) error {
	w.writes = append(w.writes, recordedWrite{keyspace, cf, attrs, ts})
	return nil
}

func indexedInfo(t *testing.T) *schemamodel.SchemaInfo {
	t.Helper()
	s := &schemamodel.Schema{
		Table: "widgets",
		Attributes: map[string]schemamodel.AttributeType{
			"shop": {Base: schemamodel.TypeString},
			"sku":  {Base: schemamodel.TypeString},
			"name": {Base: schemamodel.TypeString},
		},
		Index: []schemamodel.IndexElement{
			schemamodel.Hash("shop"),
			schemamodel.Range("sku", schemamodel.Asc),
		},
		SecondaryIndexes: map[string]schemamodel.SecondaryIndex{
			"by_name": {Name: "by_name", Elements: []schemamodel.IndexElement{
				schemamodel.Hash("shop"),
				schemamodel.Range("name", schemamodel.Asc),
			}},
		},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{Kind: schemamodel.RetentionAll},
	}
	info, err := schemamodel.MakeSchemaInfo(s, false)
	require.NoError(t, err)
	return info
}

func TestProcessFirstRowIsFullDiff(t *testing.T) {
	info := indexedInfo(t)
	w := &fakeWriter{}
	r := New(w, nil)

	row := map[string]interface{}{"shop": "acme", "sku": "1", "name": "widget"}
	r.Process(context.Background(), "ks", info, row, 1000)

	require.Len(t, w.writes, 1)
	assert.Equal(t, "idx_by_name_ever", w.writes[0].cf)
	assert.Equal(t, int64(1000), w.writes[0].ts)
}

func TestProcessSkipsWhenIndexedAttrUnchanged(t *testing.T) {
	info := indexedInfo(t)
	w := &fakeWriter{}
	r := New(w, nil)

	row1 := map[string]interface{}{"shop": "acme", "sku": "1", "name": "widget"}
	row2 := map[string]interface{}{"shop": "acme", "sku": "1", "name": "widget"}

	r.Process(context.Background(), "ks", info, row1, 2000)
	r.Process(context.Background(), "ks", info, row2, 1000)

	assert.Len(t, w.writes, 1, "unchanged name must not trigger a second index write")
}

func TestProcessTombstoneForcesDelIntoDiff(t *testing.T) {
	info := indexedInfo(t)
	w := &fakeWriter{}
	r := New(w, nil)

	row1 := map[string]interface{}{"shop": "acme", "sku": "1", "name": "widget"}
	row2 := map[string]interface{}{"shop": "acme", "sku": "1", "name": "widget", "_del": "some-tid"}

	r.Process(context.Background(), "ks", info, row1, 2000)
	r.Process(context.Background(), "ks", info, row2, 1000)

	require.Len(t, w.writes, 2)
	assert.Equal(t, "some-tid", w.writes[1].attrs["_del"])
}
