package hostapi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/hostapi"
	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

func newProdForInit(t *testing.T) (*hostapi.Prod, *registry.Registry) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg := registry.New()
	eng := schema.New(s, reg)
	require.NoError(t, eng.EnsureLedger(context.Background()))
	return hostapi.New(s, reg, eng), reg
}

func TestRegisterSchemaExtensionRequiresStaging(t *testing.T) {
	prod, _ := newProdForInit(t)
	view := prod.NewView("tasks")

	err := view.RegisterSchemaExtension(pluginapi.EntityOwnTable, tasksSchemaChanges())
	require.Error(t, err)
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(err))
}

func TestRegisterSchemaExtensionWritesToStaging(t *testing.T) {
	prod, reg := newProdForInit(t)
	staging := reg.BeginStaging("tasks")
	view := prod.NewInitView("tasks", staging)

	require.NoError(t, view.RegisterSchemaExtension(pluginapi.EntityOwnTable, tasksSchemaChanges()))
	reg.Commit(staging)

	assert.True(t, reg.OwnsTable("tasks", "tasks"))
}

func TestRegisterSchemaExtensionRejectsWrongEntityForCoreTable(t *testing.T) {
	prod, reg := newProdForInit(t)
	staging := reg.BeginStaging("billing")
	view := prod.NewInitView("billing", staging)

	err := view.RegisterSchemaExtension(pluginapi.EntityActivity, []pluginapi.SchemaChange{{
		Kind: pluginapi.KindAddColumn,
		AddColumn: &pluginapi.AddColumnChange{
			Table:  "categories",
			Column: "priority",
			Type:   "INTEGER",
		},
	}})
	require.Error(t, err)
	assert.Equal(t, hosterr.InvalidArgument, hosterr.KindOf(err))
}

func TestRegisterSchemaExtensionAllowsMatchingEntityForCoreTable(t *testing.T) {
	prod, reg := newProdForInit(t)
	staging := reg.BeginStaging("billing")
	view := prod.NewInitView("billing", staging)

	err := view.RegisterSchemaExtension(pluginapi.EntityCategory, []pluginapi.SchemaChange{{
		Kind: pluginapi.KindAddColumn,
		AddColumn: &pluginapi.AddColumnChange{
			Table:  "categories",
			Column: "priority",
			Type:   "INTEGER",
		},
	}})
	assert.NoError(t, err)
}

func TestRegisterSchemaExtensionAllowsCreateTableRegardlessOfEntity(t *testing.T) {
	prod, reg := newProdForInit(t)
	staging := reg.BeginStaging("tasks")
	view := prod.NewInitView("tasks", staging)

	err := view.RegisterSchemaExtension(pluginapi.EntityActivity, tasksSchemaChanges())
	assert.NoError(t, err, "CreateTable targets a new plugin-owned table, not a core entity, so entity_type is unconstrained")
}

func TestRegisterModelExtensionRequiresStaging(t *testing.T) {
	prod, _ := newProdForInit(t)
	view := prod.NewView("tasks")

	err := view.RegisterModelExtension(pluginapi.EntityActivity, []pluginapi.Field{{Name: "priority", Type: "INTEGER"}})
	require.Error(t, err)
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(err))
}

func TestRegisterQueryFiltersRequiresStaging(t *testing.T) {
	prod, _ := newProdForInit(t)
	view := prod.NewView("tasks")

	err := view.RegisterQueryFilters(pluginapi.EntityActivity, []pluginapi.QueryFilter{{Name: "exclude_tagged"}})
	require.Error(t, err)
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(err))
}

func TestRegisterDataHookRequiresStaging(t *testing.T) {
	prod, _ := newProdForInit(t)
	view := prod.NewView("tasks")

	err := view.RegisterDataHook(pluginapi.EntityActivity, "on_activity_saved")
	require.Error(t, err)
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(err))
}

func TestCallPluginWithoutDispatcherFails(t *testing.T) {
	prod, _ := newProdForInit(t)
	view := prod.NewView("tasks")

	_, err := view.CallPlugin("billing", "get_invoice", nil)
	require.Error(t, err)
	assert.Equal(t, hosterr.Internal, hosterr.KindOf(err))
}

func TestConfigGetWithoutGetterReturnsFalse(t *testing.T) {
	prod, _ := newProdForInit(t)
	view := prod.NewView("tasks")

	_, ok := view.ConfigGet("anything")
	assert.False(t, ok)
}

func TestCoreEntityCRUDThroughView(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	for _, ddl := range schema.CoreSchemaDDL() {
		_, err := s.Exec(ctx, ddl)
		require.NoError(t, err)
	}

	reg := registry.New()
	prod := hostapi.New(s, reg, schema.New(s, reg))
	view := prod.NewView("tasks")

	created, err := view.CreateCategory(pluginapi.Obj{"name": "Work", "color": "#fff", "sort_order": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, "Work", created["name"])

	cats, err := view.GetCategories()
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	require.NoError(t, view.DeleteCategory(created["id"].(int64)))
}
