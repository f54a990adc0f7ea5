// Package cassandra implements engine.Executor against a real Cassandra
// cluster via the gocql driver.
package cassandra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/axonops/revtable/internal/engine"
	"github.com/axonops/revtable/internal/ident"
)

// Config holds the connection surface consumed by NewExecutor.
type Config struct {
	Hosts          []string
	Port           int
	Username       string
	Password       string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Executor implements engine.Executor on top of a gocql session.
type Executor struct {
	session *gocql.Session
	log     *slog.Logger
}

// NewExecutor connects to the cluster described by cfg. It does not create
// or select any keyspace: every statement the engine issues is already
// keyspace-qualified (see ident.Quote usage throughout this package).
func NewExecutor(cfg Config, log *slog.Logger) (*Executor, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("cassandra: at least one host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 9042
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.RetryPolicy = &retryPolicy{}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: connecting: %w", err)
	}

	return &Executor{session: session, log: log}, nil
}

// Close releases the underlying session.
func (e *Executor) Close() {
	e.session.Close()
}

func consistencyOf(level string) gocql.Consistency {
	switch level {
	case "all":
		return gocql.All
	case "localQuorum":
		return gocql.LocalQuorum
	default:
		return gocql.LocalOne
	}
}

func (e *Executor) query(ctx context.Context, keyspace string, stmt engine.Statement, opts engine.ExecOptions) *gocql.Query {
	q := e.session.Query(stmt.CQL, stmt.Params...).WithContext(ctx).Consistency(consistencyOf(opts.Consistency))
	if opts.HasTimestamp {
		q = q.WithTimestamp(opts.Timestamp)
	}
	return q
}

// Exec runs a single statement to completion.
func (e *Executor) Exec(ctx context.Context, keyspace string, stmt engine.Statement, opts engine.ExecOptions) error {
	return e.query(ctx, keyspace, stmt, opts).Exec()
}

// Iter runs a statement and streams its result pages.
func (e *Executor) Iter(ctx context.Context, keyspace string, stmt engine.Statement, opts engine.ExecOptions) engine.RowIter {
	q := e.query(ctx, keyspace, stmt, opts)
	if opts.FetchSize > 0 {
		q = q.PageSize(opts.FetchSize)
	}
	if len(opts.PageState) > 0 {
		q = q.PageState(opts.PageState)
	}
	return &rowIter{iter: q.Iter()}
}

// Batch submits every statement as a single logged batch, so the data-table
// PUT and every secondary-index PUT succeed or fail atomically from the
// driver's perspective.
func (e *Executor) Batch(ctx context.Context, keyspace string, stmts []engine.Statement, opts engine.ExecOptions) error {
	batch := e.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Cons = consistencyOf(opts.Consistency)
	for _, s := range stmts {
		batch.Query(s.CQL, s.Params...)
	}
	return e.session.ExecuteBatch(batch)
}

// CreateKeyspace issues CREATE KEYSPACE IF NOT EXISTS, retried with
// exponential-jitter backoff (up to 100 retries, starting at 100ms) to tolerate
// concurrent schema changes from other instances racing to create the same
// keyspace.
func (e *Executor) CreateKeyspace(ctx context.Context, keyspace string, datacenters []string) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = %s",
		ident.Quote(keyspace), networkTopologyClause(datacenters),
	)
	return e.retryDDL(ctx, cql)
}

func (e *Executor) DropKeyspace(ctx context.Context, keyspace string) error {
	return e.session.Query(fmt.Sprintf("DROP KEYSPACE IF EXISTS %s", ident.Quote(keyspace))).WithContext(ctx).Exec()
}

func (e *Executor) AlterKeyspaceReplication(ctx context.Context, keyspace string, datacenters []string) error {
	cql := fmt.Sprintf("ALTER KEYSPACE %s WITH replication = %s", ident.Quote(keyspace), networkTopologyClause(datacenters))
	return e.session.Query(cql).WithContext(ctx).Exec()
}

func (e *Executor) CreateTableIfNotExists(ctx context.Context, keyspace, columnFamily, cql string) error {
	return e.retryDDL(ctx, cql)
}

func (e *Executor) AlterTable(ctx context.Context, keyspace, cql string) error {
	return e.session.Query(cql).WithContext(ctx).Exec()
}

func (e *Executor) DropTable(ctx context.Context, keyspace, columnFamily string) error {
	cql := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", ident.Quote(keyspace), ident.Quote(columnFamily))
	return e.session.Query(cql).WithContext(ctx).Exec()
}

// retryDDL retries a schema-changing statement up to 100 times with
// exponential-jitter backoff starting at 100ms, per the engine's retry
// policy for keyspace/table creation under concurrent schema changes.
func (e *Executor) retryDDL(ctx context.Context, cql string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	bctx := backoff.WithContext(backoff.WithMaxRetries(b, 100), ctx)

	return backoff.Retry(func() error {
		err := e.session.Query(cql).WithContext(ctx).Exec()
		if err != nil {
			e.log.Warn("ddl statement failed, retrying", "cql", cql, "error", err)
		}
		return err
	}, bctx)
}

func networkTopologyClause(datacenters []string) string {
	var b strings.Builder
	b.WriteString("{'class': 'NetworkTopologyStrategy'")
	for _, dc := range datacenters {
		fmt.Fprintf(&b, ", '%s': 3", dc)
	}
	b.WriteString("}")
	return b.String()
}

// rowIter adapts *gocql.Iter to engine.RowIter. gocql reports iteration
// errors only once the iterator is closed, so Err/Close share one
// close-and-cache step.
type rowIter struct {
	iter   *gocql.Iter
	err    error
	closed bool
}

func (r *rowIter) Next(dst engine.Row) bool {
	m := map[string]interface{}(dst)
	return r.iter.MapScan(m)
}

func (r *rowIter) PageState() []byte { return r.iter.PageState() }

func (r *rowIter) Err() error {
	if !r.closed {
		r.err = r.iter.Close()
		r.closed = true
	}
	return r.err
}

func (r *rowIter) Close() error { return r.Err() }

// retryPolicy resets the connection and retries once on unavailability or
// read timeout, and retries the original statement once on write timeout,
// per the engine's concurrency/resource-model retry contract.
type retryPolicy struct{}

func (p *retryPolicy) Attempt(q gocql.RetryableQuery) bool {
	return q.Attempts() <= 1
}

func (p *retryPolicy) GetRetryType(err error) gocql.RetryType {
	switch err.(type) {
	case *gocql.RequestErrUnavailable:
		return gocql.RetryNextHost
	case *gocql.RequestErrWriteTimeout:
		return gocql.Retry
	case *gocql.RequestErrReadTimeout:
		return gocql.RetryNextHost
	default:
		return gocql.Rethrow
	}
}
