// Package tasks is the catalogue of workloads a task set can name.
package tasks

import (
	"sort"

	"tickos/hal"
	"tickos/kernel"
)

// Env is what a workload can touch.
type Env struct {
	Machine   *hal.Machine
	Scheduler *kernel.Scheduler
	Console   hal.Logger
	LED       hal.LED
}

// Factory builds a task entry bound to env. The entry's argument is the
// task set's arg value.
type Factory func(env Env) kernel.Entry

var workloads = map[string]Factory{
	"spin":   Spin,
	"burst":  Burst,
	"blink":  Blink,
	"report": Report,
	"idle":   Idle,
}

// NeverBlocks reports whether a workload executes forever without calling
// Delay. Emulated time only advances while some task executes, so a set
// needs one of these as its fallback.
func NeverBlocks(name string) bool {
	switch name {
	case "spin", "idle":
		return true
	}
	return false
}

// Lookup returns the workload registered under name.
func Lookup(name string) (Factory, bool) {
	f, ok := workloads[name]
	return f, ok
}

// Names lists the registered workloads in order.
func Names() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
