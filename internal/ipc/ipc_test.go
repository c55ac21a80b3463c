package ipc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/ipc"
	"github.com/hourglassapp/hourglass/internal/orchestrator"
)

type fakeDispatcher struct {
	dispatchResult []byte
	dispatchErr    error
	listAll        []orchestrator.Snapshot
	failed         []orchestrator.FailedPlugin
	stats          map[string]orchestrator.StatsSnapshot
	disableErr     error
	lastDispatch   struct {
		pluginID, command string
		params            []byte
	}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, pluginID, command string, params []byte) ([]byte, error) {
	f.lastDispatch.pluginID = pluginID
	f.lastDispatch.command = command
	f.lastDispatch.params = params
	return f.dispatchResult, f.dispatchErr
}

func (f *fakeDispatcher) ListAll() []orchestrator.Snapshot           { return f.listAll }
func (f *fakeDispatcher) FailedPlugins() []orchestrator.FailedPlugin { return f.failed }
func (f *fakeDispatcher) AllStats() []orchestrator.StatsSnapshot {
	out := make([]orchestrator.StatsSnapshot, 0, len(f.stats))
	for _, s := range f.stats {
		out = append(out, s)
	}
	return out
}
func (f *fakeDispatcher) Stats(pluginID string) (orchestrator.StatsSnapshot, bool) {
	s, ok := f.stats[pluginID]
	return s, ok
}
func (f *fakeDispatcher) Disable(pluginID string) error { return f.disableErr }

func TestHandleInvokeSuccess(t *testing.T) {
	d := &fakeDispatcher{dispatchResult: []byte(`{"ok":true}`)}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/tasks/invoke?command=list_tasks", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, "tasks", d.lastDispatch.pluginID)
	assert.Equal(t, "list_tasks", d.lastDispatch.command)
	assert.Equal(t, "{}", string(d.lastDispatch.params), "an empty body defaults to {}")
}

func TestHandleInvokeMissingCommand(t *testing.T) {
	d := &fakeDispatcher{}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/tasks/invoke", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInvokeMapsErrorKindToStatus(t *testing.T) {
	cases := []struct {
		kind hosterr.Kind
		want int
	}{
		{hosterr.NotFound, http.StatusNotFound},
		{hosterr.InvalidArgument, http.StatusBadRequest},
		{hosterr.ManifestInvalid, http.StatusBadRequest},
		{hosterr.PermissionDenied, http.StatusForbidden},
		{hosterr.ConstraintViolation, http.StatusConflict},
		{hosterr.DependencyUnsatisfied, http.StatusFailedDependency},
		{hosterr.VersionIncompatible, http.StatusFailedDependency},
		{hosterr.RateLimited, http.StatusTooManyRequests},
		{hosterr.Timeout, http.StatusGatewayTimeout},
		{hosterr.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		d := &fakeDispatcher{dispatchErr: hosterr.New(tc.kind, "boom")}
		srv := ipc.New(d)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/tasks/invoke?command=x", nil)
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)

		assert.Equal(t, tc.want, rec.Code, "kind %s", tc.kind)

		var body struct {
			Kind hosterr.Kind `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.kind, body.Kind)
	}
}

func TestHandleList(t *testing.T) {
	d := &fakeDispatcher{listAll: []orchestrator.Snapshot{{PluginID: "tasks", State: orchestrator.StateLoaded}}}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tasks")
}

func TestHandleFailed(t *testing.T) {
	d := &fakeDispatcher{failed: []orchestrator.FailedPlugin{{PluginID: "broken", Reason: orchestrator.ReasonInitError}}}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/failed", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "broken")
}

func TestHandleStatsNotFound(t *testing.T) {
	d := &fakeDispatcher{stats: map[string]orchestrator.StatsSnapshot{}}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/ghost/stats", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatsFound(t *testing.T) {
	d := &fakeDispatcher{stats: map[string]orchestrator.StatsSnapshot{
		"tasks": {PluginID: "tasks", Calls: 5},
	}}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/tasks/stats", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var snap orchestrator.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(5), snap.Calls)
}

func TestHandleDisable(t *testing.T) {
	d := &fakeDispatcher{}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/tasks/disable", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tasks")
}

func TestHandleDisableError(t *testing.T) {
	d := &fakeDispatcher{disableErr: hosterr.New(hosterr.NotFound, "no such plugin")}
	srv := ipc.New(d)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/ghost/disable", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
