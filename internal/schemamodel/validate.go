package schemamodel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// metaSchemaDoc constrains the shape of a schema document before semantic
// validation: it catches malformed JSON payloads (wrong types, unknown
// top-level shape) early, with a precise pointer to the offending field.
const metaSchemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["table", "attributes", "index"],
  "properties": {
    "table": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 0},
    "attributes": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "index": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "attribute"],
        "properties": {
          "kind": {"enum": ["hash", "range", "static"]},
          "attribute": {"type": "string", "minLength": 1},
          "order": {"enum": ["asc", "desc"]}
        }
      }
    },
    "secondaryIndexes": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["kind", "attribute"],
          "properties": {
            "kind": {"enum": ["hash", "range", "static", "proj"]},
            "attribute": {"type": "string", "minLength": 1},
            "order": {"enum": ["asc", "desc"]}
          }
        }
      }
    },
    "options": {
      "type": "object",
      "properties": {
        "durability": {"enum": ["low", "standard"]},
        "compression": {"type": "array"},
        "default_time_to_live": {"type": "integer", "minimum": 0}
      }
    },
    "revisionRetentionPolicy": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["all", "latest", "interval"]}
      }
    }
  }
}`

var metaSchema = compileMetaSchema()

func compileMetaSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("table-schema.json", strings.NewReader(metaSchemaDoc)); err != nil {
		panic(fmt.Sprintf("schemamodel: invalid embedded meta-schema: %v", err))
	}
	compiled, err := compiler.Compile("table-schema.json")
	if err != nil {
		panic(fmt.Sprintf("schemamodel: meta-schema failed to compile: %v", err))
	}
	return compiled
}

// rawElement mirrors the wire shape of an index element before it is
// resolved into an IndexElement.
type rawElement struct {
	Kind      string `json:"kind"`
	Attribute string `json:"attribute"`
	Order     string `json:"order,omitempty"`
}

type rawCompression struct {
	Algorithm string `json:"algorithm"`
	ChunkKB   int    `json:"chunk_kb"`
}

type rawOptions struct {
	Durability        string           `json:"durability,omitempty"`
	Compression       []rawCompression `json:"compression,omitempty"`
	DefaultTimeToLive int              `json:"default_time_to_live,omitempty"`
}

type rawRetention struct {
	Type     string `json:"type"`
	Count    int    `json:"count,omitempty"`
	GraceTTL int    `json:"grace_ttl,omitempty"`
	Interval int    `json:"interval,omitempty"`
}

type rawSchema struct {
	Table                   string                  `json:"table"`
	Attributes              map[string]string       `json:"attributes"`
	Index                   []rawElement            `json:"index"`
	SecondaryIndexes        map[string][]rawElement `json:"secondaryIndexes,omitempty"`
	Options                 rawOptions              `json:"options,omitempty"`
	RevisionRetentionPolicy rawRetention            `json:"revisionRetentionPolicy"`
	Version                 int                     `json:"version"`
}

// ValidateAndNormalizeJSON decodes a raw schema document, rejects it against
// the structural meta-schema, then runs semantic validation. It is the entry
// point used by callers that receive schemas as wire JSON.
func ValidateAndNormalizeJSON(doc []byte) (*Schema, error) {
	var generic interface{}
	if err := json.Unmarshal(doc, &generic); err != nil {
		return nil, validationErrorf("schema is not valid JSON: %v", err)
	}
	if err := metaSchema.Validate(generic); err != nil {
		return nil, validationErrorf("schema document shape is invalid: %v", err)
	}

	var raw rawSchema
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, validationErrorf("schema is not valid JSON: %v", err)
	}
	return ValidateAndNormalize(decodeRaw(&raw))
}

func decodeRaw(raw *rawSchema) *Schema {
	s := &Schema{
		Table:   raw.Table,
		Version: raw.Version,
	}
	s.Attributes = make(map[string]AttributeType, len(raw.Attributes))
	for name, t := range raw.Attributes {
		s.Attributes[name] = parseAttributeType(t)
	}
	s.Index = decodeElements(raw.Index)
	if raw.SecondaryIndexes != nil {
		s.SecondaryIndexes = make(map[string]SecondaryIndex, len(raw.SecondaryIndexes))
		for name, els := range raw.SecondaryIndexes {
			s.SecondaryIndexes[name] = SecondaryIndex{Name: name, Elements: decodeElements(els)}
		}
	}
	s.Options.Durability = raw.Options.Durability
	s.Options.DefaultTimeToLive = raw.Options.DefaultTimeToLive
	for _, c := range raw.Options.Compression {
		s.Options.Compression = append(s.Options.Compression, CompressionSpec{Algorithm: c.Algorithm, ChunkKB: c.ChunkKB})
	}
	s.RevisionRetentionPolicy = decodeRetention(raw.RevisionRetentionPolicy)
	return s
}

func decodeElements(raw []rawElement) []IndexElement {
	out := make([]IndexElement, 0, len(raw))
	for _, e := range raw {
		el := IndexElement{Attribute: e.Attribute}
		switch e.Kind {
		case "hash":
			el.Kind = KindHash
		case "range":
			el.Kind = KindRange
			el.Order = Order(e.Order)
		case "static":
			el.Kind = KindStatic
		case "proj":
			el.Kind = KindProj
		}
		out = append(out, el)
	}
	return out
}

func decodeRetention(raw rawRetention) RetentionPolicy {
	switch raw.Type {
	case "latest":
		return RetentionPolicy{Kind: RetentionLatest, Count: raw.Count, GraceTTL: raw.GraceTTL}
	case "interval":
		return RetentionPolicy{Kind: RetentionInterval, Interval: raw.Interval, Count: raw.Count, GraceTTL: raw.GraceTTL}
	default:
		return RetentionPolicy{Kind: RetentionAll}
	}
}

func parseAttributeType(s string) AttributeType {
	if strings.HasPrefix(s, "set<") && strings.HasSuffix(s, ">") {
		return AttributeType{Base: s[4 : len(s)-1], Set: true}
	}
	return AttributeType{Base: s}
}

var validCompressionAlgorithms = map[string]bool{"lz4": true, "deflate": true, "snappy": true}
var validChunkSizes = map[int]bool{64: true, 128: true, 256: true, 512: true, 1024: true}
var validDurability = map[string]bool{"low": true, "standard": true, "": true}

// ValidateAndNormalize checks every invariant in §3.1/§4.B and returns a
// normalized copy of schema with default range orders applied. It never
// mutates the input.
func ValidateAndNormalize(schema *Schema) (*Schema, error) {
	if schema == nil {
		return nil, validationErrorf("schema is nil")
	}
	if schema.Table == "" {
		return nil, validationErrorf("table name is required")
	}

	out := schema.Clone()

	hasHash := false
	for i, el := range out.Index {
		switch el.Kind {
		case KindHash:
			hasHash = true
		case KindRange:
			if el.Order == "" {
				out.Index[i].Order = Desc
				el.Order = Desc
			}
			if el.Order != Asc && el.Order != Desc {
				return nil, validationErrorf("index element %q has invalid order %q", el.Attribute, el.Order)
			}
		}
		if el.Kind != KindProj {
			if _, ok := out.Attributes[el.Attribute]; !ok {
				return nil, validationErrorf("index attribute %q is not declared in attributes", el.Attribute)
			}
		}
	}
	if !hasHash {
		return nil, validationErrorf("schema for table %q requires at least one hash index element", out.Table)
	}

	if err := validateReversibleOrder(out.Index); err != nil {
		return nil, err
	}

	for name, t := range out.Attributes {
		if !t.IsValid() {
			return nil, validationErrorf("attribute %q has unrecognized type %q", name, t.Base)
		}
	}

	for idxName, idx := range out.SecondaryIndexes {
		hasIdxHash := false
		for i, el := range idx.Elements {
			if el.Kind == KindHash {
				hasIdxHash = true
			}
			if el.Kind == KindRange && el.Order == "" {
				idx.Elements[i].Order = Desc
			}
			if el.Kind != KindProj {
				if _, ok := out.Attributes[el.Attribute]; !ok {
					return nil, validationErrorf("secondary index %q references undeclared attribute %q", idxName, el.Attribute)
				}
			}
		}
		if !hasIdxHash {
			return nil, validationErrorf("secondary index %q requires at least one hash element", idxName)
		}
		out.SecondaryIndexes[idxName] = idx
	}

	if err := validateOptions(out.Options); err != nil {
		return nil, err
	}
	if err := validateRetention(out.RevisionRetentionPolicy); err != nil {
		return nil, err
	}

	return out, nil
}

// validateReversibleOrder ensures range orders for the same index are either
// all as-declared or all reversed, never a mix.
func validateReversibleOrder(index []IndexElement) error {
	var declared []Order
	for _, el := range index {
		if el.Kind == KindRange {
			declared = append(declared, el.Order)
		}
	}
	if len(declared) == 0 {
		return nil
	}
	base := declared[0]
	reversed := base == Desc
	_ = reversed
	for _, o := range declared[1:] {
		if o != base {
			return validationErrorf("range order must be uniform across all range elements (got mixed asc/desc)")
		}
	}
	return nil
}

func validateOptions(o Options) error {
	if !validDurability[o.Durability] {
		return validationErrorf("options.durability must be \"low\" or \"standard\", got %q", o.Durability)
	}
	if o.DefaultTimeToLive < 0 {
		return validationErrorf("options.default_time_to_live must be non-negative")
	}
	for _, c := range o.Compression {
		if !validCompressionAlgorithms[c.Algorithm] {
			return validationErrorf("options.compression algorithm %q is not one of lz4|deflate|snappy", c.Algorithm)
		}
		if !validChunkSizes[c.ChunkKB] {
			return validationErrorf("options.compression chunk size %d is not one of 64|128|256|512|1024", c.ChunkKB)
		}
	}
	return nil
}

func validateRetention(p RetentionPolicy) error {
	switch p.Kind {
	case RetentionAll:
		return nil
	case RetentionLatest:
		if p.Count < 1 {
			return validationErrorf("revisionRetentionPolicy.count must be >= 1")
		}
		if p.GraceTTL < MinGraceTTL {
			return validationErrorf("revisionRetentionPolicy.grace_ttl must be >= %d seconds", MinGraceTTL)
		}
		return nil
	case RetentionInterval:
		if p.Interval <= 0 {
			return validationErrorf("revisionRetentionPolicy.interval must be > 0")
		}
		if p.GraceTTL < MinGraceTTL {
			return validationErrorf("revisionRetentionPolicy.grace_ttl must be >= %d seconds", MinGraceTTL)
		}
		return nil
	default:
		return validationErrorf("revisionRetentionPolicy.type is not recognized")
	}
}
