package schema

import (
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// TableColumns reconstructs the live column set for table by replaying
// pluginID's committed CreateTable/AddColumn schema changes in
// registration order. There is no separate "table metadata" store: the
// Extension Registry's change stream is the single source of truth,
// Ownership and column layout are derived entirely from registered
// CreateTable/AddColumn extensions, never from a persisted side table.
func TableColumns(reg *registry.Registry, pluginID, table string) []pluginapi.Column {
	entry := reg.Entry(pluginID)
	if entry == nil {
		return nil
	}
	var cols []pluginapi.Column
	for _, c := range entry.SchemaChanges {
		switch c.Kind {
		case pluginapi.KindCreateTable:
			if c.CreateTable.Name == table {
				cols = append(cols, c.CreateTable.Columns...)
			}
		case pluginapi.KindAddColumn:
			if c.AddColumn.Table == table {
				cols = append(cols, pluginapi.Column{
					Name: c.AddColumn.Column,
					Type: c.AddColumn.Type,
				})
			}
		}
	}
	return cols
}

// ColumnByName finds column name within cols.
func ColumnByName(cols []pluginapi.Column, name string) (pluginapi.Column, bool) {
	for _, c := range cols {
		if c.Name == name {
			return c, true
		}
	}
	return pluginapi.Column{}, false
}

// IsNumericType reports whether a column's declared type accepts
// numeric comparison operators (gte/lte/gt/lt) — used by the Host API to
// reject a numeric filter operator against a non-numeric column with
// InvalidArgument.
func IsNumericType(sqlType string) bool {
	switch sqlType {
	case "INTEGER", "REAL", "NUMERIC":
		return true
	default:
		return false
	}
}
