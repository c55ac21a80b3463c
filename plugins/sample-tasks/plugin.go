package main

import "github.com/hourglassapp/hourglass/pkg/pluginapi"

// HourglassNewPlugin is the loader's factory entry point, looked up by
// name via plugin.Lookup once this file is built with -buildmode=plugin.
func HourglassNewPlugin() pluginapi.Plugin {
	return NewTasksPlugin()
}

// HourglassDestroyPlugin is a no-op here: TasksPlugin holds no resources
// the garbage collector can't reclaim on its own once the handle is
// closed.
func HourglassDestroyPlugin(p pluginapi.Plugin) {}

// main is required for -buildmode=plugin but never runs; the loader
// calls HourglassNewPlugin directly.
func main() {}
