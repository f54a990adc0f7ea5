package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/axonops/revtable/internal/ident"
	"github.com/axonops/revtable/internal/migrator"
	"github.com/axonops/revtable/internal/schemamodel"
)

// TableSchemaResult is the {tid, schema} pair returned by GetTableSchema.
type TableSchemaResult struct {
	Tid    string
	Schema *schemamodel.Schema
}

const metaTableDDL = `CREATE TABLE IF NOT EXISTS %s.meta (key text PRIMARY KEY, value text, tid timeuuid)`
const metaUpsertCQL = `INSERT INTO %s.meta (key, value, tid) VALUES (?, ?, ?)`

// CreateTable creates a brand-new table, or migrates an already-created one
// onto a new schema version through the six-stage migrator when a schema is
// already on record.
func (db *DB) CreateTable(ctx context.Context, domain, table string, schemaDoc []byte) (*PutResult, error) {
	schema, err := schemamodel.ValidateAndNormalizeJSON(schemaDoc)
	if err != nil {
		return nil, err
	}
	if schema.Table != table {
		return nil, queryErrorf("schema table %q does not match path table %q", schema.Table, table)
	}

	ks, err := db.resolveKeyspace(domain, table)
	if err != nil {
		return nil, err
	}

	current, err := db.fetchSchema(ctx, ks)
	if err != nil {
		return nil, err
	}

	proposed, err := schemamodel.MakeSchemaInfo(schema, false)
	if err != nil {
		return nil, err
	}

	if current == nil {
		if err := db.createTableFromScratch(ctx, ks, proposed); err != nil {
			return nil, driverErrorf(err, "creating table %s.%s", domain, table)
		}
	} else {
		proposed.BackendVersion = current.BackendVersion
		proposed.ConfigVersion = current.ConfigVersion
		req := migrator.Request{
			Keyspace:       ks,
			Exec:           (*migratorExecAdapter)(db),
			Datacenters:    db.cfg.Datacenters,
			BackendVersion: current.BackendVersion,
			ConfigVersion:  current.ConfigVersion,
		}
		if err := migrator.Run(ctx, req, current, proposed); err != nil {
			return nil, err
		}
	}

	if err := db.persistSchema(ctx, ks, schemaDoc); err != nil {
		return nil, driverErrorf(err, "persisting schema for %s.%s", domain, table)
	}
	db.schemaCache.Invalidate(ks)

	return &PutResult{Status: 201}, nil
}

// createTableFromScratch provisions the keyspace, the meta column family,
// the data column family, and one "_ever" column family per secondary
// index already declared in the initial schema.
func (db *DB) createTableFromScratch(ctx context.Context, ks string, info *schemamodel.SchemaInfo) error {
	if err := db.exec.CreateKeyspace(ctx, ks, db.cfg.Datacenters); err != nil {
		return err
	}
	if err := db.exec.CreateTableIfNotExists(ctx, ks, "meta", fmt.Sprintf(metaTableDDL, ident.Quote(ks))); err != nil {
		return err
	}

	dataCQL, err := migrator.BuildCreateTableCQL(ks, "data", info)
	if err != nil {
		return err
	}
	if err := db.exec.CreateTableIfNotExists(ctx, ks, "data", dataCQL); err != nil {
		return err
	}

	for idxName := range info.Schema.SecondaryIndexes {
		subInfo, err := schemamodel.MakeSecondaryInfo(info, idxName)
		if err != nil {
			return err
		}
		cf := "idx_" + idxName + "_ever"
		cql, err := migrator.BuildCreateTableCQL(ks, cf, subInfo)
		if err != nil {
			return err
		}
		if err := db.exec.CreateTableIfNotExists(ctx, ks, cf, cql); err != nil {
			return err
		}
	}
	return nil
}

// persistSchema writes the normalized schema document to the meta column
// family, stamped with a fresh tid recording when this version took effect.
func (db *DB) persistSchema(ctx context.Context, ks string, schemaDoc []byte) error {
	tid, err := uuid.NewUUID()
	if err != nil {
		return err
	}
	cql := fmt.Sprintf(metaUpsertCQL, ident.Quote(ks))
	return db.exec.Exec(ctx, ks, Statement{
		CQL:    cql,
		Params: []interface{}{"schema", string(schemaDoc), tid.String()},
	}, ExecOptions{Consistency: db.cfg.DefaultConsistency})
}

// DropTable removes a table entirely: its keyspace, data, meta and every
// secondary index column family.
func (db *DB) DropTable(ctx context.Context, domain, table string) (*PutResult, error) {
	ks, err := db.resolveKeyspace(domain, table)
	if err != nil {
		return nil, err
	}
	if err := db.exec.DropKeyspace(ctx, ks); err != nil {
		return nil, driverErrorf(err, "dropping table %s.%s", domain, table)
	}
	db.schemaCache.Invalidate(ks)
	return &PutResult{Status: 204}, nil
}

// GetTableSchema returns the persisted schema document and the tid of the
// migration that last changed it.
func (db *DB) GetTableSchema(ctx context.Context, domain, table string) (*TableSchemaResult, error) {
	ks, err := db.resolveKeyspace(domain, table)
	if err != nil {
		return nil, err
	}

	iter := db.exec.Iter(ctx, ks, Statement{
		CQL:    metaCQLFor(ks),
		Params: []interface{}{"schema"},
	}, ExecOptions{Consistency: db.cfg.DefaultConsistency, FetchSize: 1})
	defer iter.Close()

	row := Row{}
	if !iter.Next(row) {
		if err := iter.Err(); err != nil && !isNotExist(err) {
			return nil, driverErrorf(err, "fetching schema for %s.%s", domain, table)
		}
		return nil, notFoundf("no schema for table %q", table)
	}

	doc, _ := row["value"].(string)
	tid, _ := row["tid"].(string)
	schema, err := schemamodel.ValidateAndNormalizeJSON([]byte(doc))
	if err != nil {
		return nil, err
	}
	return &TableSchemaResult{Tid: tid, Schema: schema}, nil
}
