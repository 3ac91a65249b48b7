// Package monitor exposes a running machine: a JSON API and a framebuffer
// view.
package monitor

import (
	"tickos/hal"
	"tickos/kernel"
	"tickos/trace"
)

// Target is the system being watched.
type Target struct {
	Machine   *hal.Machine
	Scheduler *kernel.Scheduler
	Recorder  *trace.Recorder
}

// Status is the scheduler and core summary.
type Status struct {
	Phase       string        `json:"phase"`
	Running     bool          `json:"running"`
	Ticks       uint64        `json:"ticks"`
	Current     kernel.TaskID `json:"current"`
	CurrentName string        `json:"current_name"`
	Tasks       int           `json:"tasks"`
	Cycles      uint64        `json:"cycles"`
	CoreClockHz uint32        `json:"core_clock_hz"`
	TickHz      uint32        `json:"tick_hz"`
	Halted      bool          `json:"halted"`
	Events      uint64        `json:"events"`
}

// TaskView is one row of the task table.
type TaskView struct {
	ID        kernel.TaskID `json:"id"`
	Name      string        `json:"name"`
	Priority  uint8         `json:"priority"`
	TimeSlice uint32        `json:"time_slice"`
	Remaining uint32        `json:"remaining"`
	State     string        `json:"state"`
	Current   bool          `json:"current"`
	trace.TaskStats
}

// Sample is a consistent view taken with the core stopped.
type Sample struct {
	Status Status
	Tasks  []TaskView
}

// Sample stops the core briefly and copies its state.
func (t Target) Sample() Sample {
	var snap kernel.Snapshot
	var st hal.MachineStats
	t.Machine.Inspect(func() {
		snap = t.Scheduler.Snapshot()
		st = t.Machine.Stats()
	})

	s := Sample{
		Status: Status{
			Phase:       snap.Phase.String(),
			Running:     snap.Running,
			Ticks:       snap.Ticks,
			Current:     snap.Current,
			Tasks:       len(snap.Tasks),
			Cycles:      st.Cycles,
			CoreClockHz: st.CoreClockHz,
			TickHz:      st.TickHz,
			Halted:      st.Halted,
		},
		Tasks: make([]TaskView, 0, len(snap.Tasks)),
	}
	if t.Recorder != nil {
		s.Status.Events = t.Recorder.Total()
	}
	for _, info := range snap.Tasks {
		v := TaskView{
			ID:        info.ID,
			Name:      info.Name,
			Priority:  info.Priority,
			TimeSlice: info.TimeSlice,
			Remaining: info.Remaining,
			State:     info.State.String(),
			Current:   snap.Running && info.ID == snap.Current,
		}
		if t.Recorder != nil {
			v.TaskStats = t.Recorder.TaskStats(info.ID)
		}
		if v.Current {
			s.Status.CurrentName = info.Name
		}
		s.Tasks = append(s.Tasks, v)
	}
	return s
}
