package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/schemamodel"
)

// PutResult mirrors the programmatic API's {status, body?} shape for a
// successful write.
type PutResult struct {
	Status int
}

// Put writes one row version. It ensures a tid is present (generating one
// from the write's own clock when absent), derives the driver TIMESTAMP
// from that tid, and fans the write out across the data table and every
// secondary index whose schema the written attributes intersect. Exactly
// one resulting statement runs directly; more than one runs as a single
// logged batch so they succeed or fail together.
func (db *DB) Put(ctx context.Context, domain, table string, q querybuilder.Query) (*PutResult, error) {
	req, err := db.makeInternalRequest(ctx, domain, table, q, "")
	if err != nil {
		return nil, err
	}
	if req.Schema == nil {
		return nil, notFoundf("no schema for table %q", table)
	}
	info := req.Schema

	tidValue, tid, err := ensureTid(req.Query.Attributes, info.TidAttribute)
	if err != nil {
		return nil, err
	}
	req.Query.Attributes[info.TidAttribute] = tidValue

	if req.Query.HasTimestamp {
		// Caller-supplied timestamps arrive in milliseconds (epoch-ms, the
		// external API convention); the driver's USING TIMESTAMP wants
		// microseconds.
		req.Query.Timestamp *= 1000
	} else {
		req.Query.Timestamp = tidMicroseconds(tid)
		req.Query.HasTimestamp = true
	}

	stmts, err := buildFanOut(req)
	if err != nil {
		return nil, err
	}

	if len(stmts) == 1 {
		if err := db.exec.Exec(ctx, req.Keyspace, stmts[0], ExecOptions{Consistency: req.Consistency}); err != nil {
			return nil, driverErrorf(err, "put %s.%s", domain, table)
		}
	} else {
		if err := db.exec.Batch(ctx, req.Keyspace, stmts, ExecOptions{Consistency: req.Consistency}); err != nil {
			return nil, driverErrorf(err, "put %s.%s", domain, table)
		}
	}

	db.startBackgroundUpdates(req, tid)

	return &PutResult{Status: 201}, nil
}

// buildFanOut compiles the data-table PUT plus one PUT per secondary index
// whose own attributes intersect this write's attributes.
func buildFanOut(req *querybuilder.InternalRequest) ([]querybuilder.Built, error) {
	info := req.Schema

	dataBuilt, err := querybuilder.BuildPutQuery(req)
	if err != nil {
		return nil, err
	}
	stmts := []querybuilder.Built{*dataBuilt}

	for idxName, idx := range info.Schema.SecondaryIndexes {
		subInfo, err := schemamodel.MakeSecondaryInfo(info, idxName)
		if err != nil {
			return nil, err
		}
		if !writesIndex(req.Query.Attributes, idx.Elements) {
			continue
		}
		idxReq := *req
		idxReq.Schema = subInfo
		idxReq.ColumnFamily = "idx_" + idxName + "_ever"
		idxReq.Query.Attributes = restrictToSchema(req.Query.Attributes, subInfo)
		built, err := querybuilder.BuildPutQuery(&idxReq)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, *built)
	}

	return stmts, nil
}

func writesIndex(attrs map[string]interface{}, elements []schemamodel.IndexElement) bool {
	for _, el := range elements {
		if _, ok := attrs[el.Attribute]; ok {
			return true
		}
	}
	return false
}

func restrictToSchema(attrs map[string]interface{}, info *schemamodel.SchemaInfo) map[string]interface{} {
	out := map[string]interface{}{}
	for name, v := range attrs {
		if _, ok := info.Schema.Attributes[name]; ok {
			out[name] = v
		}
	}
	return out
}

// ensureTid returns the request's tid value (as a string, generating one
// when absent) together with its parsed form for timestamp derivation.
func ensureTid(attrs map[string]interface{}, tidAttr string) (string, uuid.UUID, error) {
	raw, ok := attrs[tidAttr]
	if !ok || raw == nil {
		u, err := uuid.NewUUID()
		if err != nil {
			return "", uuid.UUID{}, driverErrorf(err, "generating tid")
		}
		return u.String(), u, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", uuid.UUID{}, queryErrorf("attribute %q must be a timeuuid string", tidAttr)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", uuid.UUID{}, queryErrorf("attribute %q is not a valid timeuuid: %v", tidAttr, err)
	}
	return s, u, nil
}

// tidMicroseconds extracts the tid's embedded timestamp as Unix
// microseconds, per §4.D.3's `query.timestamp * 1000` convention.
func tidMicroseconds(tid uuid.UUID) int64 {
	sec, nsec := tid.Time().UnixTime()
	return sec*1_000_000 + nsec/1_000
}
