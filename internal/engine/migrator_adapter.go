package engine

import (
	"context"
	"fmt"

	"github.com/axonops/revtable/internal/ident"
)

// migratorExecAdapter narrows DB down to the migrator.Executor surface,
// translating each migration primitive into one ALTER/CREATE/DROP statement
// against the underlying driver Executor.
type migratorExecAdapter DB

func (a *migratorExecAdapter) AlterTableOptions(ctx context.Context, keyspace, columnFamily, optionsCQL string) error {
	cql := fmt.Sprintf("ALTER TABLE %s.%s %s", ident.Quote(keyspace), ident.Quote(columnFamily), optionsCQL)
	return (*DB)(a).exec.AlterTable(ctx, keyspace, cql)
}

func (a *migratorExecAdapter) AddColumn(ctx context.Context, keyspace, columnFamily, attribute, cqlType string) error {
	cql := fmt.Sprintf("ALTER TABLE %s.%s ADD %s %s", ident.Quote(keyspace), ident.Quote(columnFamily), ident.Quote(attribute), cqlType)
	return (*DB)(a).exec.AlterTable(ctx, keyspace, cql)
}

func (a *migratorExecAdapter) DropColumn(ctx context.Context, keyspace, columnFamily, attribute string) error {
	cql := fmt.Sprintf("ALTER TABLE %s.%s DROP %s", ident.Quote(keyspace), ident.Quote(columnFamily), ident.Quote(attribute))
	return (*DB)(a).exec.AlterTable(ctx, keyspace, cql)
}

func (a *migratorExecAdapter) AlterKeyspaceReplication(ctx context.Context, keyspace string, datacenters []string) error {
	return (*DB)(a).exec.AlterKeyspaceReplication(ctx, keyspace, datacenters)
}

// DropLegacyDomainIndex drops the v0 backend's shared, unprefixed secondary
// index lookup table. Its absence (a table that was never on v0) is not an
// error.
func (a *migratorExecAdapter) DropLegacyDomainIndex(ctx context.Context, keyspace string) error {
	err := (*DB)(a).exec.DropTable(ctx, keyspace, "domain_idx")
	if err != nil && isNotExist(err) {
		return nil
	}
	return err
}

func (a *migratorExecAdapter) CreateTableIfNotExists(ctx context.Context, keyspace, columnFamily, createCQL string) error {
	return (*DB)(a).exec.CreateTableIfNotExists(ctx, keyspace, columnFamily, createCQL)
}

func (a *migratorExecAdapter) DropTable(ctx context.Context, keyspace, columnFamily string) error {
	return (*DB)(a).exec.DropTable(ctx, keyspace, columnFamily)
}
