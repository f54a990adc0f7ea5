package schemamodel

import (
	"encoding/json"
	"sort"
)

// SchemaHash serializes schema-info using a stable, key-sorted encoding that
// excludes _backend_version, so two logically identical schemas hash equal
// regardless of attribute/index declaration order.
func SchemaHash(info *SchemaInfo) (string, error) {
	doc := canonicalDoc(info)
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// canonicalDoc builds a deterministically ordered representation: maps
// (attributes, secondary indexes) become name-sorted slices of [key, value]
// pairs and compression specs are sorted by algorithm, so map key ordering in
// the source schema never affects the result. Index element lists keep their
// declared order, since element order is part of the key.
func canonicalDoc(info *SchemaInfo) map[string]interface{} {
	s := info.Schema

	attrNames := make([]string, 0, len(s.Attributes))
	for name := range s.Attributes {
		attrNames = append(attrNames, name)
	}
	sort.Strings(attrNames)
	attrs := make([]interface{}, 0, len(attrNames))
	for _, name := range attrNames {
		t := s.Attributes[name]
		attrs = append(attrs, []interface{}{name, t.String()})
	}

	idxNames := make([]string, 0, len(s.SecondaryIndexes))
	for name := range s.SecondaryIndexes {
		idxNames = append(idxNames, name)
	}
	sort.Strings(idxNames)
	secondary := make([]interface{}, 0, len(idxNames))
	for _, name := range idxNames {
		secondary = append(secondary, []interface{}{name, elementsDoc(s.SecondaryIndexes[name].Elements)})
	}

	return map[string]interface{}{
		"table":             s.Table,
		"attributes":        attrs,
		"index":             elementsDoc(s.Index),
		"secondary_indexes": secondary,
		"options":           optionsDoc(s.Options),
		"retention":         retentionDoc(s.RevisionRetentionPolicy),
		"version":           s.Version,
		"is_meta":           info.IsMeta,
		"tid_attribute":     info.TidAttribute,
		"tid_hidden":        info.TidHidden,
		"config_version":    info.ConfigVersion,
	}
}

func elementsDoc(elements []IndexElement) []interface{} {
	out := make([]interface{}, 0, len(elements))
	for _, el := range elements {
		out = append(out, map[string]interface{}{
			"kind":      el.Kind,
			"attribute": el.Attribute,
			"order":     el.Order,
		})
	}
	return out
}

func optionsDoc(o Options) map[string]interface{} {
	comp := make([]interface{}, 0, len(o.Compression))
	for _, c := range o.Compression {
		comp = append(comp, []interface{}{c.Algorithm, c.ChunkKB})
	}
	sort.Slice(comp, func(i, j int) bool {
		return comp[i].([]interface{})[0].(string) < comp[j].([]interface{})[0].(string)
	})
	return map[string]interface{}{
		"durability":  o.Durability,
		"compression": comp,
		"default_ttl": o.DefaultTimeToLive,
	}
}

func retentionDoc(p RetentionPolicy) map[string]interface{} {
	return map[string]interface{}{
		"kind":     p.Kind,
		"count":    p.Count,
		"grace":    p.GraceTTL,
		"interval": p.Interval,
	}
}
