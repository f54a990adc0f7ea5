package migrator

import (
	"context"

	"github.com/axonops/revtable/internal/schemamodel"
)

// backendStep reconciles the physical storage backend's implementation
// version: a legacy (v0) table carried a shared, unprefixed secondary-index
// keyspace-wide lookup; the current backend (v1) scopes every secondary
// index's rows to the hash-partitioned, per-keyspace column families this
// module builds. Upgrading drops the legacy lookup once replaced.
type backendStep struct{}

func (s *backendStep) Name() string { return "backend" }

func (s *backendStep) Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (bool, error) {
	if req.BackendVersion < current.BackendVersion {
		return false, badRequestf("cannot downgrade backend version from %d to %d", current.BackendVersion, req.BackendVersion)
	}
	return req.BackendVersion > current.BackendVersion, nil
}

func (s *backendStep) Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	if current.BackendVersion == 0 && req.BackendVersion >= 1 {
		if err := req.Exec.DropLegacyDomainIndex(ctx, req.Keyspace); err != nil {
			return err
		}
	}
	proposed.BackendVersion = req.BackendVersion
	return nil
}
