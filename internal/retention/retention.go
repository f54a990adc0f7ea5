// Package retention implements the revision retention policy: expiring old
// row versions via TTL once a schema's configured policy says they are no
// longer the "current" version worth keeping untimed.
package retention

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/axonops/revtable/internal/schemamodel"
)

// Rewriter re-applies a row with a grace TTL. It is satisfied by the
// storage engine's Put, called with noConvert=true and timestamp cleared so
// the rewrite reuses the original request's own parameter values verbatim.
type Rewriter interface {
	RewriteWithTTL(ctx context.Context, domain, table string, attrs map[string]interface{}, ttl int) error
}

// Manager applies a schema's revisionRetentionPolicy to the sequence of row
// versions seen by the background updater.
type Manager struct {
	rewrite Rewriter
	log     *slog.Logger
}

// New creates a retention manager backed by rewrite. log may be nil.
func New(rewrite Rewriter, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{rewrite: rewrite, log: log}
}

// Apply runs the policy over one row, where seq is the row's 0-based
// position in the descending-by-tid sequence seen so far for this primary
// key (0 is the newest, i.e. the just-written row when called from the
// background updater).
func (m *Manager) Apply(ctx context.Context, domain, table string, info *schemamodel.SchemaInfo, row map[string]interface{}, seq int, tid uuid.UUID) {
	policy := info.Schema.RevisionRetentionPolicy
	switch policy.Kind {
	case schemamodel.RetentionAll:
		return
	case schemamodel.RetentionLatest:
		m.applyLatest(ctx, domain, table, row, seq, policy)
	case schemamodel.RetentionInterval:
		m.applyInterval(ctx, domain, table, row, tid, policy)
	}
}

// applyLatest skips the first Count rows (the newest revisions, which are
// kept at full retention) and grace-TTLs everything after, unless a row
// already carries a TTL at or below the grace period.
func (m *Manager) applyLatest(ctx context.Context, domain, table string, row map[string]interface{}, seq int, policy schemamodel.RetentionPolicy) {
	if seq < policy.Count {
		return
	}
	if existing, ok := currentTTL(row); ok && existing > 0 && existing <= policy.GraceTTL {
		return
	}
	m.rewriteRow(ctx, domain, table, row, policy.GraceTTL)
}

// applyInterval grace-TTLs any row whose tid falls within the current
// retention interval bucket and that has no TTL applied yet; older buckets
// are left alone (they were already handled when they were current).
func (m *Manager) applyInterval(ctx context.Context, domain, table string, row map[string]interface{}, tid uuid.UUID, policy schemamodel.RetentionPolicy) {
	sec, _ := tid.Time().UnixTime()
	intervalLimit := sec - sec%int64(policy.Interval)
	if sec < intervalLimit {
		return
	}
	if existing, ok := currentTTL(row); ok && existing > 0 {
		return
	}
	m.rewriteRow(ctx, domain, table, row, policy.GraceTTL)
}

func currentTTL(row map[string]interface{}) (int, bool) {
	v, ok := row["_ttl"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// rewriteRow reuses the original attributes, bypassing value conversion
// (the row was already read back in its driver-native form) and omitting a
// USING TIMESTAMP so the rewrite lands as a fresh write at the current
// clock. Failures are logged and dropped, never surfaced to the caller.
func (m *Manager) rewriteRow(ctx context.Context, domain, table string, row map[string]interface{}, graceTTL int) {
	attrs := make(map[string]interface{}, len(row))
	for k, v := range row {
		if k == "_ttl" {
			continue
		}
		attrs[k] = v
	}
	if err := m.rewrite.RewriteWithTTL(ctx, domain, table, attrs, graceTTL); err != nil {
		m.log.Warn("retention: rewrite failed", "domain", domain, "table", table, "error", err)
	}
}
