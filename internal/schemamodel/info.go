package schemamodel

import (
	"github.com/axonops/revtable/internal/convert"
)

// DomainAttribute is the hidden, always-first hash element injected into
// every primary and secondary index of a non-meta table so one physical
// table can serve many tenants.
const DomainAttribute = "_domain"

// DelAttribute is the hidden tombstone-marker attribute.
const DelAttribute = "_del"

// HiddenTidAttribute is the name given to the synthesized MVCC clock column
// when the schema's own range elements don't already end in one.
const HiddenTidAttribute = "_tid"

// SchemaInfo is the derived, internal form of a Schema used by the query
// builder and storage engine. It is built once per physical table and
// cached; BackendVersion/ConfigVersion and Hash are implementation
// bookkeeping, distinct from the user-facing Schema.Version.
type SchemaInfo struct {
	Schema *Schema

	IsMeta bool

	// TidAttribute is the attribute serving as the MVCC clock: either the
	// schema's own trailing descending timeuuid range element, or the
	// synthesized HiddenTidAttribute.
	TidAttribute string
	TidHidden    bool

	IKeys        []string
	IKeyMap      map[string]IndexElement
	StaticKeyMap map[string]IndexElement

	Conversions map[string]convert.Conversion

	// AttributeIndexes maps an attribute name to the secondary index names
	// whose key (or projection) references it.
	AttributeIndexes map[string][]string

	Hash string

	BackendVersion int
	ConfigVersion  int
}

// MakeSchemaInfo derives the internal schema-info for a validated schema.
// isMeta suppresses the _domain injection performed for ordinary tables,
// since the meta column family is shared infrastructure, not tenant data.
func MakeSchemaInfo(schema *Schema, isMeta bool) (*SchemaInfo, error) {
	s := schema.Clone()

	index := append([]IndexElement(nil), s.Index...)
	if !isMeta {
		index = append([]IndexElement{Hash(DomainAttribute)}, index...)
		s.Attributes[DomainAttribute] = AttributeType{Base: TypeString}
	}

	tidAttr, tidHidden := resolveTid(index, s.Attributes)
	if tidHidden {
		index = append(index, Range(tidAttr, Desc))
	}
	s.Attributes[tidAttr] = AttributeType{Base: TypeTimeUUID}

	if _, ok := s.Attributes[DelAttribute]; !ok {
		s.Attributes[DelAttribute] = AttributeType{Base: TypeTimeUUID}
	}

	s.Index = index
	return finalizeSchemaInfo(s, isMeta, tidAttr, tidHidden)
}

// finalizeSchemaInfo computes the key maps, per-attribute secondary-index
// membership, conversions and stable hash shared by both primary and
// secondary-index schema-info derivation. s.Index must already be complete
// (domain/tid injected as appropriate by the caller).
func finalizeSchemaInfo(s *Schema, isMeta bool, tidAttr string, tidHidden bool) (*SchemaInfo, error) {
	info := &SchemaInfo{
		Schema:           s,
		IsMeta:           isMeta,
		TidAttribute:     tidAttr,
		TidHidden:        tidHidden,
		IKeyMap:          map[string]IndexElement{},
		StaticKeyMap:     map[string]IndexElement{},
		AttributeIndexes: map[string][]string{},
	}

	for _, el := range s.Index {
		info.IKeys = append(info.IKeys, el.Attribute)
		switch el.Kind {
		case KindHash, KindRange:
			info.IKeyMap[el.Attribute] = el
		case KindStatic:
			info.StaticKeyMap[el.Attribute] = el
		}
	}

	for idxName, idx := range s.SecondaryIndexes {
		info.AttributeIndexes[DelAttribute] = appendUnique(info.AttributeIndexes[DelAttribute], idxName)
		for _, el := range idx.Elements {
			info.AttributeIndexes[el.Attribute] = appendUnique(info.AttributeIndexes[el.Attribute], idxName)
		}
	}

	info.Conversions = map[string]convert.Conversion{}
	for name, t := range s.Attributes {
		if c, ok := convert.Lookup(t.Base, t.Set); ok {
			info.Conversions[name] = c
		}
	}

	h, err := SchemaHash(info)
	if err != nil {
		return nil, err
	}
	info.Hash = h

	return info, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// resolveTid finds the version-column candidate among a primary index's
// range elements: if the last range element is a descending timeuuid, it is
// the tid; otherwise a hidden _tid column must be appended.
func resolveTid(index []IndexElement, attrs map[string]AttributeType) (attr string, hidden bool) {
	var lastRange *IndexElement
	for i := range index {
		if index[i].Kind == KindRange {
			lastRange = &index[i]
		}
	}
	if lastRange != nil && lastRange.Order == Desc &&
		attrs[lastRange.Attribute] == (AttributeType{Base: TypeTimeUUID}) {
		return lastRange.Attribute, false
	}
	return HiddenTidAttribute, true
}

// MakeSecondaryInfo derives the schema-info for a secondary index's own
// column family: the index's own keys come first, then any primary-key
// attribute not already present (other than the tid) is promoted to a
// descending range element, and _del/tid are carried as non-key columns.
func MakeSecondaryInfo(main *SchemaInfo, idxName string) (*SchemaInfo, error) {
	idx, ok := main.Schema.SecondaryIndexes[idxName]
	if !ok {
		return nil, validationErrorf("unknown secondary index %q", idxName)
	}

	sub := &Schema{
		Table:      main.Schema.Table + "_idx_" + idxName,
		Attributes: map[string]AttributeType{},
		Version:    main.Schema.Version,
	}

	present := map[string]bool{DomainAttribute: true}
	sub.Index = append(sub.Index, Hash(DomainAttribute))
	sub.Attributes[DomainAttribute] = AttributeType{Base: TypeString}

	for _, el := range idx.Elements {
		if el.Kind != KindProj {
			sub.Index = append(sub.Index, el)
			present[el.Attribute] = true
		}
		if t, ok := main.Schema.Attributes[el.Attribute]; ok {
			sub.Attributes[el.Attribute] = t
		}
	}
	for _, attr := range main.IKeys {
		if attr == DomainAttribute || attr == main.TidAttribute || present[attr] {
			continue
		}
		sub.Index = append(sub.Index, Range(attr, Desc))
		present[attr] = true
		if t, ok := main.Schema.Attributes[attr]; ok {
			sub.Attributes[attr] = t
		}
	}
	for _, el := range idx.Elements {
		if el.Kind == KindProj {
			if t, ok := main.Schema.Attributes[el.Attribute]; ok {
				sub.Attributes[el.Attribute] = t
			}
		}
	}
	// _del and the source row's tid are carried as plain, non-indexed columns.
	sub.Attributes[DelAttribute] = AttributeType{Base: TypeTimeUUID}
	sub.Attributes[main.TidAttribute] = AttributeType{Base: TypeTimeUUID}

	return finalizeSchemaInfo(sub, false, main.TidAttribute, main.TidHidden)
}
