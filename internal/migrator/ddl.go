package migrator

import (
	"fmt"
	"strings"

	"github.com/axonops/revtable/internal/querybuilder"
	"github.com/axonops/revtable/internal/schemamodel"
)

// BuildCreateTableCQL renders a CREATE TABLE IF NOT EXISTS statement for one
// column family (the data table or one secondary index's "_ever" table) from
// its derived schema-info. Exported so the storage engine's table-creation
// path can share it with the migrator's index step.
func BuildCreateTableCQL(keyspace, columnFamily string, info *schemamodel.SchemaInfo) (string, error) {
	var cols []string
	for name, t := range info.Schema.Attributes {
		cols = append(cols, fmt.Sprintf("%q %s", name, cqlTypeName(t)))
	}

	var hashCols, rangeCols []string
	var clusterOrder []string
	for _, el := range info.Schema.Index {
		switch el.Kind {
		case schemamodel.KindHash:
			hashCols = append(hashCols, fmt.Sprintf("%q", el.Attribute))
		case schemamodel.KindRange:
			rangeCols = append(rangeCols, fmt.Sprintf("%q", el.Attribute))
			clusterOrder = append(clusterOrder, fmt.Sprintf("%q %s", el.Attribute, strings.ToUpper(string(el.Order))))
		}
	}
	if len(hashCols) == 0 {
		return "", badRequestf("table %s has no hash key element", columnFamily)
	}

	pk := fmt.Sprintf("(%s)", strings.Join(hashCols, ", "))
	if len(rangeCols) > 0 {
		pk += ", " + strings.Join(rangeCols, ", ")
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s, PRIMARY KEY (%s))",
		keyspace, columnFamily, strings.Join(cols, ", "), pk)

	var with []string
	if len(clusterOrder) > 0 {
		with = append(with, fmt.Sprintf("CLUSTERING ORDER BY (%s)", strings.Join(clusterOrder, ", ")))
	}
	optionsClause, err := querybuilder.BuildOptionsClause(info.Schema.Options)
	if err != nil {
		return "", err
	}
	if optionsClause != "" {
		with = append(with, strings.TrimPrefix(strings.TrimSpace(optionsClause), "WITH "))
	}
	if len(with) > 0 {
		stmt += " WITH " + strings.Join(with, " AND ")
	}
	return stmt, nil
}
