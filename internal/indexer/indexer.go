// Package indexer implements the secondary-index maintainer: given the
// sequence of row revisions for a primary key (newest first), it detects
// which indexed attributes changed between consecutive revisions and
// upserts the corresponding secondary-index column families.
package indexer

import (
	"context"
	"log/slog"

	"github.com/axonops/revtable/internal/schemamodel"
)

// Writer issues one parameterized INSERT against keyspace.columnFamily,
// using writeTimestampUs as the driver's USING TIMESTAMP so that
// out-of-order rebuilds converge by row tid rather than wall clock.
type Writer interface {
	WriteIndexRow(ctx context.Context, keyspace, columnFamily string, attrs map[string]interface{}, writeTimestampUs int64) error
}

// Rebuilder is the IndexRebuilder: stateful across one write's window of
// sibling revisions, not shared across writes.
type Rebuilder struct {
	writer  Writer
	log     *slog.Logger
	prevRow map[string]interface{}
	hasPrev bool
}

// New creates a rebuilder for one background-update pass. log may be nil.
func New(writer Writer, log *slog.Logger) *Rebuilder {
	if log == nil {
		log = slog.Default()
	}
	return &Rebuilder{writer: writer, log: log}
}

// Process handles one row (in descending-tid order) against the schema's
// secondary indexes. keyspace is the data table's keyspace; tidMicros is
// the row's tid converted to Unix microseconds.
func (r *Rebuilder) Process(ctx context.Context, keyspace string, info *schemamodel.SchemaInfo, row map[string]interface{}, tidMicros int64) {
	diff := r.diff(info, row)
	r.prevRow, r.hasPrev = row, true

	if len(diff) == 0 {
		return
	}

	for idxName, idx := range info.Schema.SecondaryIndexes {
		if !intersects(info.AttributeIndexes, diff, idxName) {
			continue
		}
		subInfo, err := schemamodel.MakeSecondaryInfo(info, idxName)
		if err != nil {
			r.log.Warn("indexer: deriving secondary schema failed", "index", idxName, "error", err)
			continue
		}
		attrs := r.indexRowAttrs(subInfo, idx, row)
		cf := "idx_" + idxName + "_ever"
		if err := r.writer.WriteIndexRow(ctx, keyspace, cf, attrs, tidMicros); err != nil {
			r.log.Warn("indexer: write failed", "index", idxName, "error", err)
		}
	}
}

// diff computes the attributes that changed since prevRow, restricted to
// attributes referenced by any secondary index (plus _del). A change of
// primary key (a new partition) makes the whole row the diff; a tombstone
// forces _del into the diff regardless of whether it actually changed.
func (r *Rebuilder) diff(info *schemamodel.SchemaInfo, row map[string]interface{}) map[string]bool {
	diff := map[string]bool{}

	newPartition := !r.hasPrev || primaryKeyChanged(info, r.prevRow, row)
	for attr := range info.AttributeIndexes {
		if newPartition || !equalAttr(r.prevRow, row, attr) {
			diff[attr] = true
		}
	}
	if row[schemamodel.DelAttribute] != nil {
		diff[schemamodel.DelAttribute] = true
	}
	return diff
}

func primaryKeyChanged(info *schemamodel.SchemaInfo, prev, row map[string]interface{}) bool {
	for _, key := range info.IKeys {
		if key == info.TidAttribute {
			continue
		}
		if !equalAttr(prev, row, key) {
			return true
		}
	}
	return false
}

func equalAttr(prev, row map[string]interface{}, attr string) bool {
	if prev == nil {
		return false
	}
	pv, pok := prev[attr]
	rv, rok := row[attr]
	if pok != rok {
		return false
	}
	return pv == rv
}

func intersects(attributeIndexes map[string][]string, diff map[string]bool, idxName string) bool {
	for attr := range diff {
		for _, name := range attributeIndexes[attr] {
			if name == idxName {
				return true
			}
		}
	}
	return false
}

// indexRowAttrs assembles the full row to insert into a secondary index's
// column family: every attribute the sub-schema declares, substituting nil
// for any the source row lacks.
func (r *Rebuilder) indexRowAttrs(subInfo *schemamodel.SchemaInfo, idx schemamodel.SecondaryIndex, row map[string]interface{}) map[string]interface{} {
	attrs := make(map[string]interface{}, len(subInfo.Schema.Attributes))
	for name := range subInfo.Schema.Attributes {
		if v, ok := row[name]; ok {
			attrs[name] = v
		} else {
			attrs[name] = nil
		}
	}
	return attrs
}

// ColumnFamilyName returns the physical name of a secondary index's column
// family, exported so callers building keyspace DDL share the convention.
func ColumnFamilyName(idxName string) string {
	return "idx_" + idxName + "_ever"
}
