// Package main implements the "tasks" sample plugin: a minimal
// own-table CRUD plugin exercising insert_own_table/query_own_table/
// update_own_table and the host's auto-timestamp columns, the way the
// teacher's example.HelloPlugin exercises its own host API surface for
// testing rather than production use.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

const (
	pluginID      = "tasks"
	pluginVersion = "1.0.0"
	tasksTable    = "tasks"
)

// TasksPlugin backs plugin.toml's tasks plugin: one owned table with an
// id primary key, a done flag, and host-managed created_at/updated_at
// columns.
type TasksPlugin struct {
	callCount int
}

// NewTasksPlugin constructs a TasksPlugin. The loader's factory symbol
// calls this; see plugin.go.
func NewTasksPlugin() *TasksPlugin {
	return &TasksPlugin{}
}

func (p *TasksPlugin) Info() pluginapi.Info {
	return pluginapi.Info{ID: pluginID, Version: pluginVersion}
}

// SchemaExtensions implements pluginapi.SchemaExtensionProvider; Initialize
// registers exactly this change set.
func (p *TasksPlugin) SchemaExtensions() []pluginapi.SchemaChange {
	return []pluginapi.SchemaChange{
		{
			Kind: pluginapi.KindCreateTable,
			CreateTable: &pluginapi.CreateTableChange{
				Name: tasksTable,
				Columns: []pluginapi.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "title", Type: "TEXT"},
					{Name: "done", Type: "INTEGER", Nullable: true},
					{Name: "created_at", Type: "INTEGER", AutoTimestamp: pluginapi.AutoTimestampCreated},
					{Name: "updated_at", Type: "INTEGER", AutoTimestamp: pluginapi.AutoTimestampUpdated},
				},
			},
		},
	}
}

func (p *TasksPlugin) Initialize(api pluginapi.HostAPI) error {
	if err := api.RegisterSchemaExtension(pluginapi.EntityOwnTable, p.SchemaExtensions()); err != nil {
		return fmt.Errorf("registering tasks schema: %w", err)
	}
	api.Log("info", "tasks plugin initialized", map[string]any{"version": pluginVersion})
	return nil
}

// InvokeCommand dispatches list/create/complete/delete against the
// owned tasks table.
func (p *TasksPlugin) InvokeCommand(command string, params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	p.callCount++

	switch command {
	case "create_task":
		return p.createTask(params, api)
	case "list_tasks":
		return p.listTasks(params, api)
	case "complete_task":
		return p.completeTask(params, api)
	case "delete_task":
		return p.deleteTask(params, api)
	case "stats":
		return p.stats()
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (p *TasksPlugin) Shutdown() error {
	return nil
}

func (p *TasksPlugin) createTask(params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	row, err := api.InsertOwnTable(tasksTable, pluginapi.Obj{"title": req.Title})
	if err != nil {
		return nil, err
	}
	return json.Marshal(row)
}

func (p *TasksPlugin) listTasks(params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	var req struct {
		Done *bool `json:"done"`
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &req)
	}

	filters := pluginapi.Filters{}
	if req.Done != nil {
		if *req.Done {
			filters["done"] = 1
		} else {
			filters["done"] = 0
		}
	}

	rows, err := api.QueryOwnTable(tasksTable, filters, "id ASC", nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rows)
}

func (p *TasksPlugin) completeTask(params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}

	ok, err := api.UpdateOwnTable(tasksTable, req.ID, pluginapi.Obj{"done": 1})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"updated": ok})
}

func (p *TasksPlugin) deleteTask(params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}

	ok, err := api.DeleteOwnTable(tasksTable, req.ID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"deleted": ok})
}

func (p *TasksPlugin) stats() (json.RawMessage, error) {
	return json.Marshal(map[string]any{"call_count": p.callCount})
}
