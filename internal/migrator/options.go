package migrator

import (
	"context"
	"reflect"

	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/schemamodel"
)

// optionsStep reconciles table-level storage options: compression and
// default TTL. These are pure ALTER TABLE ... WITH changes, safe to apply
// in place.
type optionsStep struct{}

func (s *optionsStep) Name() string { return "options" }

func (s *optionsStep) Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (bool, error) {
	return !reflect.DeepEqual(current.Schema.Options, proposed.Schema.Options), nil
}

func (s *optionsStep) Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	clause, err := querybuilder.BuildOptionsClause(proposed.Schema.Options)
	if err != nil {
		return err
	}
	if clause == "" {
		return nil
	}
	return req.Exec.AlterTableOptions(ctx, req.Keyspace, "data", clause)
}
