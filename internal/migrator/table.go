package migrator

import (
	"context"
	"reflect"

	"github.com/axonops/revtable/internal/schemamodel"
)

// tableStep reconciles the table's table name and primary-index structure.
// Cassandra cannot ALTER a table's partition/clustering key once created, so
// any change here is rejected rather than migrated.
type tableStep struct{}

func (s *tableStep) Name() string { return "table" }

func (s *tableStep) Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (bool, error) {
	if current.Schema.Table != proposed.Schema.Table {
		return false, badRequestf("table name cannot be changed (%q to %q)", current.Schema.Table, proposed.Schema.Table)
	}
	if !reflect.DeepEqual(current.IKeys, proposed.IKeys) || !indexEqual(current.Schema.Index, proposed.Schema.Index) {
		return false, badRequestf("primary index cannot be changed once a table is created")
	}
	return false, nil
}

func (s *tableStep) Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	return nil
}

func indexEqual(a, b []schemamodel.IndexElement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
