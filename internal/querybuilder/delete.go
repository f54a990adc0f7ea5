package querybuilder

import (
	"fmt"
	"strings"

	"github.com/axonops/revtable/internal/ident"
)

// BuildDeleteQuery compiles a physical DELETE restricted to a primary-key
// predicate. This is reserved for maintenance use; ordinary deletes are
// logical (a PUT setting _del), per the storage engine's delete operation.
func BuildDeleteQuery(req *InternalRequest) (*Built, error) {
	if req.ColumnFamily == "meta" {
		return nil, queryErrorf("deleting from the meta column family is not permitted")
	}
	info := req.Schema

	predAttrs := map[string]interface{}{}
	for _, key := range info.IKeys {
		v, ok := req.Query.Attributes[key]
		if !ok {
			return nil, queryErrorf("primary-key attribute %q is required for delete", key)
		}
		predAttrs[key] = v
	}

	cond, params, err := buildCondition(predAttrs, &conversionSource{Conversions: info.Conversions}, false)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s.%s WHERE %s", ident.Quote(req.Keyspace), ident.Quote(req.ColumnFamily), cond)

	return &Built{CQL: sb.String(), Params: params}, nil
}
