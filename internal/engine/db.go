// Package engine implements the storage engine: request normalization,
// schema-cache population, the get/put/delete operations, and the
// background updates that keep secondary indexes and revision retention
// consistent after each write.
package engine

import (
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/axonops/revtable/internal/cache"
	"github.com/axonops/revtable/internal/storagegroup"
)

// Config is process-wide, set once at startup from the host application's
// own configuration loading (out of this engine's scope per its contract).
type Config struct {
	DefaultConsistency string // "localOne" unless overridden
	Datacenters        []string
	StorageGroups      []storagegroup.Group

	// OlderWindowLimit bounds how many older revisions a background update
	// walks per write; defaults to 3.
	OlderWindowLimit int
	// BackgroundPageSize is the page size used while streaming the older
	// window; defaults to 5.
	BackgroundPageSize int
	// BackgroundConcurrency bounds how many post-write maintenance passes
	// (index rebuild + retention) may run at once; defaults to 32.
	BackgroundConcurrency int
}

func (c Config) withDefaults() Config {
	if c.DefaultConsistency == "" {
		c.DefaultConsistency = "localOne"
	}
	if c.OlderWindowLimit <= 0 {
		c.OlderWindowLimit = 3
	}
	if c.BackgroundPageSize <= 0 {
		c.BackgroundPageSize = 5
	}
	if c.BackgroundConcurrency <= 0 {
		c.BackgroundConcurrency = 32
	}
	return c
}

// DB is the storage engine's entry point: one instance per process, shared
// across all concurrent requests.
type DB struct {
	exec   Executor
	cfg    Config
	groups *storagegroup.Resolver

	schemaCache      *cache.SchemaInfoCache
	keyspaceNames    *cache.KeyspaceNameCache
	replicationCache *cache.ReplicationUpdateCache

	// schemaFetch collapses concurrent schema-cache misses for the same
	// keyspace into a single meta-row read.
	schemaFetch singleflight.Group

	// bgPool bounds how many post-write maintenance passes run concurrently
	// across the whole process.
	bgPool *errgroup.Group

	log *slog.Logger
}

// NewDB wires a storage engine around exec, the host application's driver
// adapter.
func NewDB(exec Executor, cfg Config, log *slog.Logger) (*DB, error) {
	groups, err := storagegroup.NewResolver(cfg.StorageGroups)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	bgPool := &errgroup.Group{}
	bgPool.SetLimit(cfg.BackgroundConcurrency)

	return &DB{
		exec:             exec,
		cfg:              cfg,
		groups:           groups,
		schemaCache:      cache.NewSchemaInfoCache(),
		keyspaceNames:    cache.NewKeyspaceNameCache(),
		replicationCache: cache.NewReplicationUpdateCache(),
		bgPool:           bgPool,
		log:              log,
	}, nil
}
