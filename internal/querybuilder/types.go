// Package querybuilder turns a structured InternalRequest into parameterized
// CQL, mirroring the predicate/projection/ordering rules of the storage
// engine without depending on a live driver session.
package querybuilder

import (
	"fmt"

	"github.com/axonops/revtable/internal/schemamodel"
)

// InternalRequest is the normalized shape every builder consumes.
type InternalRequest struct {
	Domain       string
	Table        string
	Keyspace     string
	Query        Query
	Consistency  string
	ColumnFamily string // "data", "meta", or "idx_<name>_ever"
	Schema       *schemamodel.SchemaInfo
	TTL          int // 0 means unset; negative is invalid
	HasTTL       bool
}

// Query is the caller-supplied request body, shared across get/put/delete.
type Query struct {
	Attributes   map[string]interface{}
	Proj         interface{} // string or []string
	Order        map[string]string
	Limit        int // driver page size (fetchSize), NOT the CQL LIMIT
	Next         string
	Index        string
	Consistency  string
	Distinct     bool
	WithTTL      bool
	If           interface{} // "not exists" or a predicate map
	Timestamp    int64
	HasTimestamp bool
	Options      QueryOptions
}

// QueryOptions carries the CQL-level LIMIT, distinct from Query.Limit which
// is the driver's page size.
type QueryOptions struct {
	Limit int
}

// Built is the output of every builder: ready-to-prepare CQL plus its bound
// parameters, in binding order.
type Built struct {
	CQL    string
	Params []interface{}
}

// QueryError is returned for a malformed predicate, operator or projection;
// callers surface it as InvalidQuery (400).
type QueryError struct {
	Msg string
}

func (e *QueryError) Error() string { return e.Msg }

func queryErrorf(format string, args ...interface{}) error {
	return &QueryError{Msg: fmt.Sprintf(format, args...)}
}
