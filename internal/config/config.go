// Package config loads task-set files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"tickos/kernel"
)

// TaskSet describes one emulation run: the machine and the tasks to create,
// in creation order.
type TaskSet struct {
	Name string `yaml:"name"`

	// CoreClockHz is the emulated core clock. Zero selects the machine default.
	CoreClockHz uint32 `yaml:"core_clock_hz"`
	// Ticks halts the run after that many ticks. Zero runs until interrupted.
	Ticks    uint64 `yaml:"ticks"`
	Realtime bool   `yaml:"realtime"`

	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec is one task. Priority 0 is the highest.
type TaskSpec struct {
	Name      string `yaml:"name"`
	Workload  string `yaml:"workload"`
	Priority  uint8  `yaml:"priority"`
	TimeSlice uint32 `yaml:"time_slice"`
	Arg       uint32 `yaml:"arg"`
}

// Default returns the built-in demo set. burst-b never runs while burst-a is
// ready: equal priorities do not share the processor.
func Default() TaskSet {
	return TaskSet{
		Name:  "demo",
		Ticks: 2000,
		Tasks: []TaskSpec{
			{Name: "report", Workload: "report", Priority: 1, TimeSlice: 5, Arg: 500},
			{Name: "blink", Workload: "blink", Priority: 2, TimeSlice: 5, Arg: 250},
			{Name: "burst-a", Workload: "burst", Priority: 3, TimeSlice: 10, Arg: 24_000},
			{Name: "burst-b", Workload: "burst", Priority: 3, TimeSlice: 10, Arg: 8_000},
			{Name: "idle", Workload: "idle", Priority: 255, TimeSlice: 1},
		},
	}
}

// Load reads and validates a task-set file. Unknown keys are errors.
func Load(path string) (TaskSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TaskSet{}, fmt.Errorf("read task set: %w", err)
	}
	set, err := Parse(data)
	if err != nil {
		return TaskSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates a task set.
func Parse(data []byte) (TaskSet, error) {
	var set TaskSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return TaskSet{}, fmt.Errorf("parse task set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return TaskSet{}, err
	}
	return set, nil
}

// Validate checks the set against the kernel's limits.
func (s TaskSet) Validate() error {
	var errs []error
	if len(s.Tasks) == 0 {
		errs = append(errs, errors.New("no tasks"))
	}
	if len(s.Tasks) > kernel.MaxTasks {
		errs = append(errs, fmt.Errorf("%d tasks, at most %d", len(s.Tasks), kernel.MaxTasks))
	}
	seen := make(map[string]bool, len(s.Tasks))
	for i, t := range s.Tasks {
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("task %d: missing name", i))
		case seen[t.Name]:
			errs = append(errs, fmt.Errorf("task %d: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true
		if t.Workload == "" {
			errs = append(errs, fmt.Errorf("task %q: missing workload", t.Name))
		}
		if t.TimeSlice == 0 {
			errs = append(errs, fmt.Errorf("task %q: time_slice must be at least 1", t.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid task set: %w", errors.Join(errs...))
	}
	return nil
}

// Warnings reports settings that load but are unlikely to run well.
// neverBlocks says whether a workload keeps executing without sleeping.
func (s TaskSet) Warnings(neverBlocks func(workload string) bool) []string {
	var out []string
	fallback := false
	for _, t := range s.Tasks {
		if neverBlocks(t.Workload) {
			fallback = true
			break
		}
	}
	if !fallback && len(s.Tasks) > 0 {
		out = append(out, "no task runs without sleeping; once every task blocks the clock stops and the run never ends (add an idle task at priority 255)")
	}
	return out
}
