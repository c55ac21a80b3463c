package pluginapi

// AutoTimestampRole tags a column the host fills automatically when the
// caller omits it.
type AutoTimestampRole string

const (
	AutoTimestampNone    AutoTimestampRole = ""
	AutoTimestampCreated AutoTimestampRole = "Created"
	AutoTimestampUpdated AutoTimestampRole = "Updated"
)

// Column describes one column of a CreateTable schema change.
type Column struct {
	Name          string
	Type          string // e.g. "INTEGER", "TEXT", "REAL"
	PrimaryKey    bool
	Nullable      bool
	Default       *string
	ForeignKey    *ForeignKeyRef
	AutoTimestamp AutoTimestampRole
}

// ForeignKeyRef names the target of a foreign key.
type ForeignKeyRef struct {
	Table  string
	Column string
}

// EntityType tags the intent of a schema or model extension: which core
// entity (or "own" for a plugin-owned table) the change concerns.
type EntityType string

const (
	EntityActivity    EntityType = "Activity"
	EntityManualEntry EntityType = "ManualEntry"
	EntityCategory    EntityType = "Category"
	EntityOwnTable    EntityType = "Own"
)

// SchemaChange is one declarative schema mutation. Exactly one of the
// embedded pointer fields is set, discriminated by Kind.
type SchemaChange struct {
	Kind Kind

	CreateTable  *CreateTableChange
	AddColumn    *AddColumnChange
	AddIndex     *AddIndexChange
	AddForeignKey *AddForeignKeyChange
}

// Kind discriminates SchemaChange's variant.
type Kind string

const (
	KindCreateTable   Kind = "CreateTable"
	KindAddColumn     Kind = "AddColumn"
	KindAddIndex      Kind = "AddIndex"
	KindAddForeignKey Kind = "AddForeignKey"
)

type CreateTableChange struct {
	Name    string
	Columns []Column
}

type AddColumnChange struct {
	Table      string
	Column     string
	Type       string
	Default    *string
	ForeignKey *ForeignKeyRef
}

type AddIndexChange struct {
	Table   string
	Name    string
	Columns []string
}

type AddForeignKeyChange struct {
	Table          string
	Column         string
	ForeignTable   string
	ForeignColumn  string
}

// Field is a model-field addition registered via
// register_model_extension — descriptive metadata about an
// already-applied AddColumn, used by consumers (e.g. a frontend) that
// want to know a column's intended semantic role without re-deriving it
// from the schema change stream.
type Field struct {
	EntityType EntityType
	Name       string
	Type       string
	Label      string
}

// QueryFilter is a named, registered predicate a plugin contributes to
// core-entity reads (e.g. get_activities). Filters fire in
// plugin-registration order.
type QueryFilter struct {
	EntityType EntityType
	Name       string
}

// DataHook is a registered callback invoked around a core-entity
// lifecycle event. Per the host's chosen ABI convention (see
// internal/orchestrator), hooks are invoked as a fixed-name command
// (invoke_command(plugin_id, "__hook_<name>", row)) rather than a raw
// function pointer, since passing closures across a loaded-library
// boundary isn't possible through Go's plugin package. A hook may mutate
// the record it is handed; it cannot reject the operation.
type DataHook struct {
	EntityType EntityType
	Name       string
}
