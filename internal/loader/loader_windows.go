//go:build windows

package loader

import (
	"encoding/json"
	"syscall"
	"unsafe"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// windowsOpener loads .dll plugins via syscall.LoadDLL/FindProc. Go's
// native plugin package does not support -buildmode=plugin on Windows,
// so this path talks the C ABI literally: four required exports taking
// and returning null-terminated UTF-8 JSON C strings — byte buffers
// carrying JSON, with no owning pointers crossing the boundary except
// via paired create/destroy symbols.
type windowsOpener struct{}

func newPlatformOpener() platformOpener { return &windowsOpener{} }

const (
	procCreate        = "_plugin_create"
	procDestroy       = "_plugin_destroy"
	procInfo          = "_plugin_info"
	procInitialize    = "_plugin_initialize"
	procInvokeCommand = "_plugin_invoke_command"
	procShutdown      = "_plugin_shutdown"
	procFreeString    = "_plugin_free_string"
)

func (o *windowsOpener) open(libraryPath string) (Handle, error) {
	dll, err := syscall.LoadDLL(libraryPath)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.LibraryLoadFailed, err, "loading DLL %s", libraryPath)
	}

	createProc, err := dll.FindProc(procCreate)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.SymbolMissing, err, "DLL %s missing %s", libraryPath, procCreate)
	}
	destroyProc, err := dll.FindProc(procDestroy)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.SymbolMissing, err, "DLL %s missing %s", libraryPath, procDestroy)
	}

	handlePtr, _, _ := createProc.Call()
	if handlePtr == 0 {
		return nil, hosterr.New(hosterr.LibraryLoadFailed, "%s: %s returned null", libraryPath, procCreate)
	}

	instance := &windowsPlugin{
		dll:        dll,
		handlePtr:  handlePtr,
		destroyProc: destroyProc,
	}
	if err := instance.bind(); err != nil {
		destroyProc.Call(handlePtr)
		return nil, err
	}

	return &windowsHandle{dll: dll, instance: instance}, nil
}

type windowsHandle struct {
	dll      *syscall.DLL
	instance *windowsPlugin
}

func (h *windowsHandle) Instance() pluginapi.Plugin { return h.instance }

func (h *windowsHandle) Close() error {
	if h.instance != nil {
		h.instance.destroyProc.Call(h.instance.handlePtr)
	}
	h.instance = nil
	// syscall.DLL has no Unload in the standard library; as on the Unix
	// path, the process retains the mapping until exit. The host's own
	// lifecycle discipline (shut down, then Close, which destroys) is
	// still enforced at this call site.
	return nil
}

// windowsPlugin adapts a DLL's four exported C functions to
// pluginapi.Plugin by marshaling every call as a JSON request/response
// pair, matching the request/response envelope convention the C ABI
// exposes across the other platforms.
type windowsPlugin struct {
	dll       *syscall.DLL
	handlePtr uintptr

	infoProc    *syscall.Proc
	initProc    *syscall.Proc
	invokeProc  *syscall.Proc
	shutdownProc *syscall.Proc
	destroyProc *syscall.Proc
	freeProc    *syscall.Proc
}

func (w *windowsPlugin) bind() error {
	var err error
	if w.infoProc, err = w.dll.FindProc(procInfo); err != nil {
		return hosterr.Wrap(hosterr.SymbolMissing, err, "missing %s", procInfo)
	}
	if w.initProc, err = w.dll.FindProc(procInitialize); err != nil {
		return hosterr.Wrap(hosterr.SymbolMissing, err, "missing %s", procInitialize)
	}
	if w.invokeProc, err = w.dll.FindProc(procInvokeCommand); err != nil {
		return hosterr.Wrap(hosterr.SymbolMissing, err, "missing %s", procInvokeCommand)
	}
	if w.shutdownProc, err = w.dll.FindProc(procShutdown); err != nil {
		return hosterr.Wrap(hosterr.SymbolMissing, err, "missing %s", procShutdown)
	}
	if w.freeProc, err = w.dll.FindProc(procFreeString); err != nil {
		return hosterr.Wrap(hosterr.SymbolMissing, err, "missing %s", procFreeString)
	}
	return nil
}

func (w *windowsPlugin) Info() pluginapi.Info {
	out, err := w.call(w.infoProc, nil)
	if err != nil {
		return pluginapi.Info{}
	}
	var info pluginapi.Info
	_ = json.Unmarshal(out, &info)
	return info
}

func (w *windowsPlugin) Initialize(api pluginapi.HostAPI) error {
	// The Windows DLL boundary cannot carry a live Go HostAPI vtable
	// across the C ABI the way an in-process plugin.Plugin can; a real
	// DLL plugin instead calls back into the host through a
	// host-exported callback table supplied at _plugin_create time (out
	// of scope for this reference loader). Initialize here only proves
	// the create/info/initialize/invoke_command/shutdown/destroy
	// round-trip; a DLL plugin registers no extensions.
	_, err := w.call(w.initProc, map[string]any{})
	return err
}

func (w *windowsPlugin) InvokeCommand(command string, params json.RawMessage, api pluginapi.HostAPI) (json.RawMessage, error) {
	return w.call(w.invokeProc, map[string]any{"command": command, "params": params})
}

func (w *windowsPlugin) Shutdown() error {
	_, err := w.call(w.shutdownProc, nil)
	return err
}

func (w *windowsPlugin) call(proc *syscall.Proc, req any) (json.RawMessage, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "marshaling DLL request")
	}
	cReq, err := syscall.BytePtrFromString(string(reqJSON))
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "converting request to C string")
	}

	ret, _, _ := proc.Call(w.handlePtr, uintptr(unsafe.Pointer(cReq)))
	if ret == 0 {
		return nil, hosterr.New(hosterr.PluginPanicked, "DLL call returned null")
	}
	respJSON := cStringToGoString(ret)
	if w.freeProc != nil {
		w.freeProc.Call(ret)
	}
	return json.RawMessage(respJSON), nil
}

// cStringToGoString reads a null-terminated C string at ptr, bounded to
// cStringMaxLen to guard against corrupt/unterminated memory from a
// misbehaving plugin.
const cStringMaxLen = 1 << 20

func cStringToGoString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var bytes []byte
	for i := 0; i < cStringMaxLen; i++ {
		b := *(*byte)(unsafe.Pointer(ptr))
		if b == 0 {
			break
		}
		bytes = append(bytes, b)
		ptr++
	}
	return string(bytes)
}
