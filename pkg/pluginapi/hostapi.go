package pluginapi

import "encoding/json"

// Obj is a free-form key-value object with JSON-compatible scalars,
// arrays, and nested objects — the shape every Host API read/write call
// exchanges instead of a fixed struct, so plugin-added columns pass
// through without the host needing to know about them in advance.
type Obj map[string]any

// FilterOp is a recognized comparison operator in a filter object's
// value position, e.g. {"duration_sec": {"gte": 60}}.
type FilterOp struct {
	Eq  any   `json:"eq,omitempty"`
	Gte any   `json:"gte,omitempty"`
	Lte any   `json:"lte,omitempty"`
	Gt  any   `json:"gt,omitempty"`
	Lt  any   `json:"lt,omitempty"`
	Ne  any   `json:"ne,omitempty"`
	In  []any `json:"in,omitempty"`
	Like string `json:"like,omitempty"`
}

// Filters maps column name to either a scalar (equality) or a *FilterOp.
// Multiple keys combine with logical AND.
type Filters map[string]any

// Aggregations describes an aggregate read: optional count/sum/avg/min/max
// over a column, and an optional group_by column list.
type Aggregations struct {
	Count   string   `json:"count,omitempty"` // "*" or a column name
	Sum     string   `json:"sum,omitempty"`
	Avg     string   `json:"avg,omitempty"`
	Min     string   `json:"min,omitempty"`
	Max     string   `json:"max,omitempty"`
	GroupBy []string `json:"group_by,omitempty"`
}

// ActivityFilters narrows get_activities beyond the time range.
type ActivityFilters struct {
	ExcludeIdle *bool `json:"exclude_idle,omitempty"`
	CategoryIDs []int64 `json:"category_ids,omitempty"`
}

// HostAPI is the capability surface a Plugin receives on Initialize and
// InvokeCommand. Every method here corresponds to one entry of the
// host's API vtable; appending a method is how the host versions the
// contract forward, never by reordering existing ones.
type HostAPI interface {
	// Extension registration. Valid only during Initialize; the host's
	// implementation returns an error for a call made outside it, once
	// the plugin is Loaded (the Schema Engine has already committed).
	RegisterSchemaExtension(entity EntityType, changes []SchemaChange) error
	RegisterModelExtension(entity EntityType, fields []Field) error
	RegisterQueryFilters(entity EntityType, filters []QueryFilter) error
	RegisterDataHook(entity EntityType, name string) error

	// Core-entity CRUD.
	GetCategories() ([]Obj, error)
	CreateCategory(obj Obj) (Obj, error)
	UpdateCategory(obj Obj) (Obj, error)
	DeleteCategory(id int64) error

	GetActivities(start, end int64, limit, offset *int, filters *ActivityFilters) ([]Obj, error)

	GetManualEntries(start, end int64) ([]Obj, error)
	CreateManualEntry(obj Obj) (Obj, error)
	UpdateManualEntry(obj Obj) (Obj, error)
	DeleteManualEntry(id int64) error

	// Plugin-table CRUD, scoped to tables owned by the calling plugin.
	InsertOwnTable(table string, data Obj) (Obj, error)
	QueryOwnTable(table string, filters Filters, orderBy string, limit *int) ([]Obj, error)
	UpdateOwnTable(table string, id int64, data Obj) (bool, error)
	DeleteOwnTable(table string, id int64) (bool, error)
	AggregateOwnTable(table string, filters Filters, agg Aggregations) (Obj, error)

	// Cross-plugin reads, mediated by the Permission Broker.
	QueryPluginTable(ownerPluginID, table string, filters Filters, orderBy string, limit *int) ([]Obj, error)

	// Ambient capabilities, present on every HostAPI implementation the
	// production host hands out (a test double may stub these).
	Log(level, msg string, fields map[string]any)
	ConfigGet(key string) (string, bool)
	CallPlugin(pluginID, command string, params json.RawMessage) (json.RawMessage, error)
}
