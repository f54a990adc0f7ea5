package querybuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/axonops/revtable/internal/schemamodel"
)

var algorithmClassName = map[string]string{
	"lz4":     "LZ4Compressor",
	"deflate": "DeflateCompressor",
	"snappy":  "SnappyCompressor",
}

// BuildOptionsClause renders the WITH clause for compression and
// default_time_to_live from a validated Options value; no compaction clause
// is emitted and Durability is not rendered. An empty Options yields an empty
// string (no WITH clause at all).
func BuildOptionsClause(o schemamodel.Options) (string, error) {
	var parts []string

	if len(o.Compression) > 0 {
		// Only one compression spec is meaningful per table; the schema model
		// allows a list for forward compatibility, first entry wins.
		c := o.Compression[0]
		class, ok := algorithmClassName[c.Algorithm]
		if !ok {
			return "", fmt.Errorf("querybuilder: unknown compression algorithm %q", c.Algorithm)
		}
		parts = append(parts, fmt.Sprintf(
			"compression = {'class': '%s', 'chunk_length_in_kb': %d}", class, c.ChunkKB))
	}

	if o.DefaultTimeToLive > 0 {
		parts = append(parts, fmt.Sprintf("default_time_to_live = %d", o.DefaultTimeToLive))
	}

	if len(parts) == 0 {
		return "", nil
	}
	sort.Strings(parts)
	return " WITH " + strings.Join(parts, " AND "), nil
}
