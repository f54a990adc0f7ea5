package migrator

import (
	"context"

	"github.com/axonops/revtable/internal/schemamodel"
)

// attributesStep reconciles the set of declared attributes: new attributes
// become ALTER TABLE ADD, attributes dropped from the schema (and not part
// of any key) become ALTER TABLE DROP. Attributes that changed type are
// rejected: Cassandra only allows type changes within a narrow compatible
// set, which this module does not attempt to reason about.
type attributesStep struct{}

func (s *attributesStep) Name() string { return "attributes" }

func (s *attributesStep) Validate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) (bool, error) {
	for name, proposedType := range proposed.Schema.Attributes {
		if currentType, ok := current.Schema.Attributes[name]; ok && currentType != proposedType {
			return false, badRequestf("attribute %q cannot change type from %s to %s", name, currentType, proposedType)
		}
	}
	added, removed := diffAttributes(current, proposed)
	return len(added) > 0 || len(removed) > 0, nil
}

func (s *attributesStep) Migrate(ctx context.Context, req Request, current, proposed *schemamodel.SchemaInfo) error {
	added, removed := diffAttributes(current, proposed)
	for _, name := range added {
		if err := req.Exec.AddColumn(ctx, req.Keyspace, "data", name, cqlTypeName(proposed.Schema.Attributes[name])); err != nil {
			return err
		}
	}
	for _, name := range removed {
		if err := req.Exec.DropColumn(ctx, req.Keyspace, "data", name); err != nil {
			return err
		}
	}
	return nil
}

func diffAttributes(current, proposed *schemamodel.SchemaInfo) (added, removed []string) {
	for name := range proposed.Schema.Attributes {
		if _, ok := current.Schema.Attributes[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range current.Schema.Attributes {
		if _, ok := proposed.Schema.Attributes[name]; !ok {
			if _, isKey := current.IKeyMap[name]; isKey {
				continue
			}
			if _, isStatic := current.StaticKeyMap[name]; isStatic {
				continue
			}
			removed = append(removed, name)
		}
	}
	return added, removed
}

var cqlScalarName = map[string]string{
	schemamodel.TypeBlob:      "blob",
	schemamodel.TypeString:    "text",
	schemamodel.TypeInt:       "int",
	schemamodel.TypeVarint:    "varint",
	schemamodel.TypeLong:      "bigint",
	schemamodel.TypeDecimal:   "decimal",
	schemamodel.TypeDouble:    "double",
	schemamodel.TypeFloat:     "float",
	schemamodel.TypeBoolean:   "boolean",
	schemamodel.TypeTimestamp: "timestamp",
	schemamodel.TypeTimeUUID:  "timeuuid",
	schemamodel.TypeUUID:      "uuid",
	schemamodel.TypeJSON:      "text",
}

// cqlTypeName renders an attribute type's CQL column type, including the
// set<...> wrapper for set-of attributes.
func cqlTypeName(t schemamodel.AttributeType) string {
	name := cqlScalarName[t.Base]
	if t.Set {
		return "set<" + name + ">"
	}
	return name
}
