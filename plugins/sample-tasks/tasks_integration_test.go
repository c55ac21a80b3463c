package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hourglassapp/hourglass/internal/hostapi"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
)

// TestTasksPluginListTasksAgainstRealHostAPI drives the plugin through
// the production Host API instead of mockHostAPI. The hand-rolled mock's
// QueryOwnTable ignores orderBy entirely, so it can't catch an orderBy
// the real Host API's validateOrderBy would reject; this test runs
// against the genuine store/registry/schema-engine-backed Host API
// instead.
func TestTasksPluginListTasksAgainstRealHostAPI(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()
	for _, ddl := range schema.CoreSchemaDDL() {
		if _, err := s.Exec(ctx, ddl); err != nil {
			t.Fatalf("bootstrapping core schema: %v", err)
		}
	}

	reg := registry.New()
	eng := schema.New(s, reg)
	if err := eng.EnsureLedger(ctx); err != nil {
		t.Fatalf("ensuring ledger: %v", err)
	}
	prod := hostapi.New(s, reg, eng)

	p := NewTasksPlugin()
	staging := reg.BeginStaging(pluginID)
	initView := prod.NewInitView(pluginID, staging)
	if err := p.Initialize(initView); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := eng.Apply(ctx, pluginID, p.SchemaExtensions()); err != nil {
		t.Fatalf("applying tasks schema: %v", err)
	}
	reg.Commit(staging)

	view := prod.NewView(pluginID)

	createParams, _ := json.Marshal(map[string]string{"title": "Write docs"})
	if _, err := p.InvokeCommand("create_task", createParams, view); err != nil {
		t.Fatalf("create_task failed: %v", err)
	}

	listResult, err := p.InvokeCommand("list_tasks", nil, view)
	if err != nil {
		t.Fatalf("list_tasks failed against the real host API: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(listResult, &rows); err != nil {
		t.Fatalf("decoding list_tasks result: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 task, got %d", len(rows))
	}
	if rows[0]["title"] != "Write docs" {
		t.Errorf("expected title %q, got %v", "Write docs", rows[0]["title"])
	}
}
