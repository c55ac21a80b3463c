package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/hostapi"
	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/loader"
	"github.com/hourglassapp/hourglass/internal/ratelimit"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// fakePlugin is a minimal in-process pluginapi.Plugin stand-in: the
// Orchestrator's dispatch/lifecycle logic doesn't care how a plugin got
// loaded, only that it satisfies pluginapi.Plugin, so tests drive it
// without ever opening a real shared library.
type fakePlugin struct {
	invokeResult json.RawMessage
	invokeErr    error
	shutdownErr  error
	invokeCount  int
}

func (f *fakePlugin) Info() pluginapi.Info { return pluginapi.Info{ID: "tasks", Version: "1.0.0"} }
func (f *fakePlugin) Initialize(api pluginapi.HostAPI) error { return nil }
func (f *fakePlugin) InvokeCommand(command string, params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	f.invokeCount++
	return f.invokeResult, f.invokeErr
}
func (f *fakePlugin) Shutdown() error { return f.shutdownErr }

type fakeHandle struct {
	plugin  *fakePlugin
	closed  bool
}

func (h *fakeHandle) Instance() pluginapi.Plugin { return h.plugin }
func (h *fakeHandle) Close() error               { h.closed = true; return nil }

var _ loader.Handle = (*fakeHandle)(nil)

func newTestOrchestrator(t *testing.T, limiter *ratelimit.Limiter) *Orchestrator {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg := registry.New()
	eng := schema.New(s, reg)
	require.NoError(t, eng.EnsureLedger(context.Background()))
	host := hostapi.New(s, reg, eng)

	return New(host, reg, eng, nil, time.Second, time.Second, nil, limiter)
}

// loadFakePlugin injects a record directly into Loaded state, bypassing
// LoadAll/initializeOne (which requires a real dynamic library via
// loader.Open) while still exercising the same state machine the real
// path lands in once initialize succeeds.
func loadFakePlugin(o *Orchestrator, id string, handle *fakeHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plugins = append(o.plugins, id)
	o.records[id] = &pluginRecord{
		manifest: pluginapi.Manifest{ID: id, Version: "1.0.0"},
		state:    StateLoaded,
		handle:   handle,
	}
}

func TestDispatchToLoadedPlugin(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	fp := &fakePlugin{invokeResult: json.RawMessage(`{"ok":true}`)}
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: fp})

	result, err := o.Dispatch(context.Background(), "tasks", "list_tasks", []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	assert.Equal(t, 1, fp.invokeCount)
}

func TestDispatchToUnloadedPluginFails(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	_, err := o.Dispatch(context.Background(), "ghost", "list_tasks", nil)
	require.Error(t, err)
	assert.Equal(t, hosterr.DependencyUnsatisfied, hosterr.KindOf(err))
}

func TestDispatchPropagatesPluginError(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	fp := &fakePlugin{invokeErr: hosterr.New(hosterr.InvalidArgument, "bad params")}
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: fp})

	_, err := o.Dispatch(context.Background(), "tasks", "create_task", nil)
	require.Error(t, err)
	assert.Equal(t, hosterr.InvalidArgument, hosterr.KindOf(err))
}

func TestDispatchRestoresLoadedStateAfterCall(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	fp := &fakePlugin{invokeResult: json.RawMessage(`{}`)}
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: fp})

	_, err := o.Dispatch(context.Background(), "tasks", "list_tasks", nil)
	require.NoError(t, err)

	o.mu.RLock()
	state := o.records["tasks"].state
	o.mu.RUnlock()
	assert.Equal(t, StateLoaded, state)
}

func TestDispatchEnforcesRateLimit(t *testing.T) {
	limiter := ratelimit.New(1, 1)
	o := newTestOrchestrator(t, limiter)
	fp := &fakePlugin{invokeResult: json.RawMessage(`{}`)}
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: fp})

	_, err := o.Dispatch(context.Background(), "tasks", "list_tasks", nil)
	require.NoError(t, err)

	_, err = o.Dispatch(context.Background(), "tasks", "list_tasks", nil)
	require.Error(t, err)
	assert.Equal(t, hosterr.RateLimited, hosterr.KindOf(err))
}

func TestDisableShutsDownLoadedPlugin(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	fp := &fakePlugin{}
	handle := &fakeHandle{plugin: fp}
	loadFakePlugin(o, "tasks", handle)

	require.NoError(t, o.Disable("tasks"))

	o.mu.RLock()
	state := o.records["tasks"].state
	o.mu.RUnlock()
	assert.Equal(t, StateDestroyed, state)
	assert.True(t, handle.closed)
}

func TestDisableUnknownPlugin(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	err := o.Disable("ghost")
	require.Error(t, err)
	assert.Equal(t, hosterr.NotFound, hosterr.KindOf(err))
}

func TestDisableNotLoadedPlugin(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	o.mu.Lock()
	o.plugins = append(o.plugins, "tasks")
	o.records["tasks"] = &pluginRecord{manifest: pluginapi.Manifest{ID: "tasks"}, state: StateFailed}
	o.mu.Unlock()

	err := o.Disable("tasks")
	require.Error(t, err)
	assert.Equal(t, hosterr.InvalidArgument, hosterr.KindOf(err))
}

func TestListAllAndFailedPlugins(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: &fakePlugin{}})

	o.mu.Lock()
	o.plugins = append(o.plugins, "broken")
	o.records["broken"] = &pluginRecord{manifest: pluginapi.Manifest{ID: "broken"}}
	o.markTerminal("broken", StateFailed, ReasonInitError, "boom")
	o.mu.Unlock()

	snaps := o.ListAll()
	require.Len(t, snaps, 2)

	failed := o.FailedPlugins()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].PluginID)
	assert.Equal(t, ReasonInitError, failed[0].Reason)
}

func TestStatsAccumulateAcrossCalls(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	fp := &fakePlugin{invokeResult: json.RawMessage(`{}`), invokeErr: hosterr.New(hosterr.Internal, "boom")}
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: fp})

	_, _ = o.Dispatch(context.Background(), "tasks", "list_tasks", nil)
	_, _ = o.Dispatch(context.Background(), "tasks", "list_tasks", nil)

	snap, ok := o.Stats("tasks")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Calls)
	assert.Equal(t, int64(2), snap.Errors)
	assert.NotZero(t, snap.LastCallAt)
}

func TestStatsUnknownPluginReturnsFalse(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	_, ok := o.Stats("ghost")
	assert.False(t, ok)
}

func TestManifestAndIsLoaded(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	loadFakePlugin(o, "tasks", &fakeHandle{plugin: &fakePlugin{}})

	m, ok := o.Manifest("tasks")
	require.True(t, ok)
	assert.Equal(t, "tasks", m.ID)
	assert.True(t, o.IsLoaded("tasks"))

	_, ok = o.Manifest("ghost")
	assert.False(t, ok)
	assert.False(t, o.IsLoaded("ghost"))
}
