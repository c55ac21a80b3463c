package hostapi

import (
	"context"
	"encoding/json"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// View is the per-plugin pluginapi.HostAPI implementation: it closes
// over Prod plus this plugin's identity and (while Initialize is
// running) its staging area, so extension registrations are isolated
// so re-entrant registration calls from one plugin never leak into
// another's committed state.
type View struct {
	prod     *Prod
	pluginID string
	// staging is non-nil only during this plugin's Initialize call;
	// RegisterXxx calls write into it instead of the committed
	// registry. Outside Initialize it is nil and registration calls fail
	// with an Internal error: registration is only available to plugins
	// during initialize, never afterward.
	staging *registry.StagingArea
}

// NewView returns a Host API view scoped to pluginID with no active
// staging area (used for InvokeCommand, where registration calls return
// an Internal error since the plugin is already Loaded).
func (p *Prod) NewView(pluginID string) *View {
	return &View{prod: p, pluginID: pluginID}
}

// NewInitView returns a Host API view scoped to pluginID with staging
// active, for use during that plugin's Initialize call.
func (p *Prod) NewInitView(pluginID string, staging *registry.StagingArea) *View {
	return &View{prod: p, pluginID: pluginID, staging: staging}
}

var _ pluginapi.HostAPI = (*View)(nil)

func (v *View) ctx() context.Context { return context.Background() }

// --- Extension registration ---

func (v *View) RegisterSchemaExtension(entity pluginapi.EntityType, changes []pluginapi.SchemaChange) error {
	if v.staging == nil {
		return hosterr.New(hosterr.Internal, "schema extensions may only be registered during initialize")
	}
	for _, c := range changes {
		if err := checkEntityConsistency(entity, c); err != nil {
			return err
		}
	}
	v.staging.AddSchemaChanges(changes)
	return nil
}

// coreTableEntity maps a core table name to the entity_type a schema
// change against it must be tagged with.
var coreTableEntity = map[string]pluginapi.EntityType{
	"categories":     pluginapi.EntityCategory,
	"activities":     pluginapi.EntityActivity,
	"manual_entries": pluginapi.EntityManualEntry,
}

func checkEntityConsistency(entity pluginapi.EntityType, c pluginapi.SchemaChange) error {
	var target string
	switch c.Kind {
	case pluginapi.KindAddColumn:
		target = c.AddColumn.Table
	case pluginapi.KindAddIndex:
		target = c.AddIndex.Table
	case pluginapi.KindAddForeignKey:
		target = c.AddForeignKey.Table
	default:
		return nil // CreateTable targets a new plugin-owned table, not a core entity.
	}

	wantEntity, isCore := coreTableEntity[target]
	if isCore && wantEntity != entity {
		return hosterr.New(hosterr.InvalidArgument,
			"schema change targets core table %q but was registered under entity_type %q (expected %q)",
			target, entity, wantEntity)
	}
	return nil
}

func (v *View) RegisterModelExtension(entity pluginapi.EntityType, fields []pluginapi.Field) error {
	if v.staging == nil {
		return hosterr.New(hosterr.Internal, "model extensions may only be registered during initialize")
	}
	v.staging.AddModelFields(fields)
	return nil
}

func (v *View) RegisterQueryFilters(entity pluginapi.EntityType, filters []pluginapi.QueryFilter) error {
	if v.staging == nil {
		return hosterr.New(hosterr.Internal, "query filters may only be registered during initialize")
	}
	v.staging.AddQueryFilters(filters)
	return nil
}

func (v *View) RegisterDataHook(entity pluginapi.EntityType, name string) error {
	if v.staging == nil {
		return hosterr.New(hosterr.Internal, "data hooks may only be registered during initialize")
	}
	v.staging.AddDataHook(pluginapi.DataHook{EntityType: entity, Name: name})
	return nil
}

// --- Core-entity CRUD ---

func (v *View) GetCategories() ([]pluginapi.Obj, error) {
	return v.prod.core.GetCategories(v.ctx())
}

func (v *View) CreateCategory(obj pluginapi.Obj) (pluginapi.Obj, error) {
	return v.prod.core.CreateCategory(v.ctx(), obj)
}

func (v *View) UpdateCategory(obj pluginapi.Obj) (pluginapi.Obj, error) {
	return v.prod.core.UpdateCategory(v.ctx(), obj)
}

func (v *View) DeleteCategory(id int64) error {
	return v.prod.core.DeleteCategory(v.ctx(), id)
}

func (v *View) GetActivities(start, end int64, limit, offset *int, filters *pluginapi.ActivityFilters) ([]pluginapi.Obj, error) {
	return v.prod.core.GetActivities(v.ctx(), start, end, limit, offset, filters)
}

func (v *View) GetManualEntries(start, end int64) ([]pluginapi.Obj, error) {
	return v.prod.core.GetManualEntries(v.ctx(), start, end)
}

func (v *View) CreateManualEntry(obj pluginapi.Obj) (pluginapi.Obj, error) {
	return v.prod.core.CreateManualEntry(v.ctx(), obj)
}

func (v *View) UpdateManualEntry(obj pluginapi.Obj) (pluginapi.Obj, error) {
	return v.prod.core.UpdateManualEntry(v.ctx(), obj)
}

func (v *View) DeleteManualEntry(id int64) error {
	return v.prod.core.DeleteManualEntry(v.ctx(), id)
}

// --- Ambient ---

func (v *View) Log(level, msg string, fields map[string]any) {
	v.prod.logPlugin(v.pluginID, level, msg, fields)
}

func (v *View) ConfigGet(key string) (string, bool) {
	if v.prod.configGet == nil {
		return "", false
	}
	return v.prod.configGet(key)
}

func (v *View) CallPlugin(pluginID, command string, params json.RawMessage) (json.RawMessage, error) {
	if v.prod.dispatcher == nil {
		return nil, hosterr.New(hosterr.Internal, "plugin dispatch is not available")
	}
	return v.prod.dispatcher.Dispatch(v.ctx(), pluginID, command, params)
}
