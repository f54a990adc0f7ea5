// Package migrator implements the schema migration planner: six
// fixed-order migrators, each validated before any of them apply, so a
// rejected migration never leaves a table half-changed.
package migrator

import (
	"context"
	"fmt"

	"github.com/axonops/revtable/internal/schemamodel"
)

// Executor is the narrow DDL surface the migrators need from the
// underlying store.
type Executor interface {
	AlterTableOptions(ctx context.Context, keyspace, columnFamily, optionsCQL string) error
	AddColumn(ctx context.Context, keyspace, columnFamily, attribute, cqlType string) error
	DropColumn(ctx context.Context, keyspace, columnFamily, attribute string) error
	AlterKeyspaceReplication(ctx context.Context, keyspace string, datacenters []string) error
	DropLegacyDomainIndex(ctx context.Context, keyspace string) error
	CreateTableIfNotExists(ctx context.Context, keyspace, columnFamily, createCQL string) error
	DropTable(ctx context.Context, keyspace, columnFamily string) error
}

// Request carries everything a migration step needs beyond the two schema
// versions being reconciled.
type Request struct {
	Keyspace       string
	Exec           Executor
	Datacenters    []string
	BackendVersion int // the proposed backend (implementation) version
	ConfigVersion  int // the proposed config (implementation) version
}

// Step is one migrator: Validate decides (without side effects) whether
// Migrate has work to do, or rejects the change outright.
type Step interface {
	Name() string
	Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (needsWork bool, err error)
	Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error
}

// orderedSteps is the fixed application order from the component design:
// backend, config, table, options, attributes, index.
func orderedSteps() []Step {
	return []Step{
		&backendStep{}, &configStep{}, &tableStep{}, &optionsStep{}, &attributesStep{}, &indexStep{},
	}
}

// Run validates every step, aborting the whole migration if any step
// rejects the change, then applies only the steps that reported work.
// current == nil means the table does not exist yet: callers should create
// it directly rather than calling Run.
func Run(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	if current == nil {
		return nil
	}

	if err := checkVersionRule(current, proposed); err != nil {
		return err
	}

	steps := orderedSteps()
	needsWork := make([]bool, len(steps))
	for i, step := range steps {
		ok, err := step.Validate(ctx, req, current, proposed)
		if err != nil {
			return fmt.Errorf("migrator: %s: %w", step.Name(), err)
		}
		needsWork[i] = ok
	}

	for i, step := range steps {
		if !needsWork[i] {
			continue
		}
		if err := step.Migrate(ctx, req, current, proposed); err != nil {
			return fmt.Errorf("migrator: %s: %w", step.Name(), err)
		}
	}
	return nil
}

// BadRequestError mirrors the storage engine's error kind so migrator
// failures surface as 400s without this package depending on engine.
type BadRequestError struct{ Msg string }

func (e *BadRequestError) Error() string { return e.Msg }

func badRequestf(format string, args ...interface{}) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}

// checkVersionRule enforces that any change to options, attributes, index
// or secondaryIndexes is accompanied by a strictly increasing version.
func checkVersionRule(current, proposed *schemamodel.SchemaInfo) error {
	if proposed.Schema.Version > current.Schema.Version {
		return nil
	}
	if current.Hash == proposed.Hash {
		return nil
	}
	return badRequestf("schema change, but no version increment")
}
