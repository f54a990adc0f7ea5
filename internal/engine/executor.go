package engine

import "context"

// Row is a single decoded row, keyed by column name, as returned by the
// underlying driver before schema conversions are applied.
type Row map[string]interface{}

// RowIter streams the pages of a query result. Implementations are expected
// to fetch lazily, one page at a time, so callers that stop early never pay
// for unread pages.
type RowIter interface {
	// Next decodes the next row into dst, returning false at the end of the
	// result (check Err to distinguish exhaustion from failure).
	Next(dst Row) bool
	// PageState returns the opaque continuation token for the page most
	// recently returned by Next, or nil once the result is exhausted.
	PageState() []byte
	Err() error
	Close() error
}

// Statement is one parameterized CQL statement, as emitted by the query
// builder.
type Statement struct {
	CQL    string
	Params []interface{}
}

// ExecOptions configures how a statement or iteration runs.
type ExecOptions struct {
	Consistency string
	FetchSize   int
	PageState   []byte
	Timestamp   int64
	HasTimestamp bool
}

// Executor is the only surface the engine needs from the underlying
// wide-column driver: execute, prepared-statement semantics, paging-state
// propagation and retry are the driver's concern, not the engine's.
type Executor interface {
	Exec(ctx context.Context, keyspace string, stmt Statement, opts ExecOptions) error
	Iter(ctx context.Context, keyspace string, stmt Statement, opts ExecOptions) RowIter
	Batch(ctx context.Context, keyspace string, stmts []Statement, opts ExecOptions) error

	// CreateKeyspace issues CREATE KEYSPACE IF NOT EXISTS with the given
	// replication settings, retrying per the engine's backoff policy.
	CreateKeyspace(ctx context.Context, keyspace string, datacenters []string) error
	DropKeyspace(ctx context.Context, keyspace string) error
	AlterKeyspaceReplication(ctx context.Context, keyspace string, datacenters []string) error

	CreateTableIfNotExists(ctx context.Context, keyspace, columnFamily, cql string) error
	AlterTable(ctx context.Context, keyspace, cql string) error
	DropTable(ctx context.Context, keyspace, columnFamily string) error
}
