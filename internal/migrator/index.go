package migrator

import (
	"context"

	"github.com/axonops/revtable/internal/schemamodel"
)

// indexStep reconciles secondary indexes: a newly declared index gets its
// "_ever" column family created (to be populated by the background index
// rebuilder as writes land); a removed index has its column family dropped.
// Changing an existing index's elements is rejected, mirroring tableStep's
// treatment of the primary index.
type indexStep struct{}

func (s *indexStep) Name() string { return "index" }

func (s *indexStep) Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (bool, error) {
	for name, idx := range proposed.Schema.SecondaryIndexes {
		if existing, ok := current.Schema.SecondaryIndexes[name]; ok && !indexEqual(existing.Elements, idx.Elements) {
			return false, badRequestf("secondary index %q cannot change its elements once created", name)
		}
	}
	added, removed := diffIndexes(current, proposed)
	return len(added) > 0 || len(removed) > 0, nil
}

func (s *indexStep) Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	added, removed := diffIndexes(current, proposed)
	for _, name := range added {
		subInfo, err := schemamodel.MakeSecondaryInfo(proposed, name)
		if err != nil {
			return err
		}
		cf := "idx_" + name + "_ever"
		createCQL, err := BuildCreateTableCQL(req.Keyspace, cf, subInfo)
		if err != nil {
			return err
		}
		if err := req.Exec.CreateTableIfNotExists(ctx, req.Keyspace, cf, createCQL); err != nil {
			return err
		}
	}
	for _, name := range removed {
		if err := req.Exec.DropTable(ctx, req.Keyspace, "idx_"+name+"_ever"); err != nil {
			return err
		}
	}
	return nil
}

func diffIndexes(current, proposed *schemamodel.SchemaInfo) (added, removed []string) {
	for name := range proposed.Schema.SecondaryIndexes {
		if _, ok := current.Schema.SecondaryIndexes[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range current.Schema.SecondaryIndexes {
		if _, ok := proposed.Schema.SecondaryIndexes[name]; !ok {
			removed = append(removed, name)
		}
	}
	return added, removed
}
