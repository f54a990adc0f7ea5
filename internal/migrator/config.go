package migrator

import (
	"context"

	"github.com/axonops/revtable/internal/schemamodel"
)

// configStep reconciles the replication configuration's implementation
// version: a bump signals that the set of datacenters a keyspace should
// replicate to has changed (e.g. a new datacenter joined the cluster), which
// requires an ALTER KEYSPACE independent of anything in the logical schema.
type configStep struct{}

func (s *configStep) Name() string { return "config" }

func (s *configStep) Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (bool, error) {
	if req.ConfigVersion < current.ConfigVersion {
		return false, badRequestf("cannot downgrade config version from %d to %d", current.ConfigVersion, req.ConfigVersion)
	}
	return req.ConfigVersion > current.ConfigVersion, nil
}

func (s *configStep) Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	if err := req.Exec.AlterKeyspaceReplication(ctx, req.Keyspace, req.Datacenters); err != nil {
		return err
	}
	proposed.ConfigVersion = req.ConfigVersion
	return nil
}
