package retention

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/revtable/internal/schemamodel"
)

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

func latestInfo(t *testing.T, count, grace int) *schemamodel.SchemaInfo {
	t.Helper()
	s := &schemamodel.Schema{
		Table:      "widgets",
		Attributes: map[string]schemamodel.AttributeType{"key": {Base: schemamodel.TypeString}},
		Index:      []schemamodel.IndexElement{schemamodel.Hash("key")},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{
			Kind: schemamodel.RetentionLatest, Count: count, GraceTTL: grace,
		},
	}
	info, err := schemamodel.MakeSchemaInfo(s, false)
	require.NoError(t, err)
	return info
}

func TestApplyLatestSkipsNewestCount(t *testing.T) {
	rw := &recordingRewriter{}
	m := New(rw, nil)
	info := latestInfo(t, 2, 3600)
	tid, _ := uuid.NewUUID()

	m.Apply(context.Background(), "d", "t", info, map[string]interface{}{"key": "a"}, 0, tid)
	m.Apply(context.Background(), "d", "t", info, map[string]interface{}{"key": "a"}, 1, tid)
	assert.Empty(t, rw.calls, "the two newest revisions must not be rewritten")

	m.Apply(context.Background(), "d", "t", info, map[string]interface{}{"key": "a"}, 2, tid)
	require.Len(t, rw.calls, 1)
	assert.Equal(t, 3600, rw.calls[0].ttl)
}

func TestApplyLatestLeavesAlreadyGracedRowAlone(t *testing.T) {
	rw := &recordingRewriter{}
	m := New(rw, nil)
	info := latestInfo(t, 1, 3600)
	tid, _ := uuid.NewUUID()

	row := map[string]interface{}{"key": "a", "_ttl": 100}
	m.Apply(context.Background(), "d", "t", info, row, 1, tid)
	assert.Empty(t, rw.calls)
}

func TestApplyIntervalGracesCurrentBucket(t *testing.T) {
	rw := &recordingRewriter{}
	m := New(rw, nil)
	s := &schemamodel.Schema{
		Table:      "widgets",
		Attributes: map[string]schemamodel.AttributeType{"key": {Base: schemamodel.TypeString}},
		Index:      []schemamodel.IndexElement{schemamodel.Hash("key")},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{
			Kind: schemamodel.RetentionInterval, Interval: 86400, GraceTTL: 3600,
		},
	}
	info, err := schemamodel.MakeSchemaInfo(s, false)
	require.NoError(t, err)

	tid, _ := uuid.NewUUID()
	m.Apply(context.Background(), "d", "t", info, map[string]interface{}{"key": "a"}, 0, tid)
	require.Len(t, rw.calls, 1)
	assert.Equal(t, 3600, rw.calls[0].ttl)
}

func TestApplyAllIsNoop(t *testing.T) {
	rw := &recordingRewriter{}
	m := New(rw, nil)
	s := &schemamodel.Schema{
		Table:                   "widgets",
		Attributes:              map[string]schemamodel.AttributeType{"key": {Base: schemamodel.TypeString}},
		Index:                   []schemamodel.IndexElement{schemamodel.Hash("key")},
		RevisionRetentionPolicy: schemamodel.RetentionPolicy{Kind: schemamodel.RetentionAll},
	}
	info, err := schemamodel.MakeSchemaInfo(s, false)
	require.NoError(t, err)

	tid, _ := uuid.NewUUID()
	m.Apply(context.Background(), "d", "t", info, map[string]interface{}{"key": "a"}, 5, tid)
	assert.Empty(t, rw.calls)
}
