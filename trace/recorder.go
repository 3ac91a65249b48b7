// Package trace records scheduling events and persists them.
package trace

import (
	"fmt"
	"sync"

	"tickos/kernel"
)

// DefaultCapacity is the ring size used when none is given.
const DefaultCapacity = 1024

// Kind identifies a scheduling event.
type Kind uint8

const (
	KindTick Kind = iota + 1
	KindPreempt
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindPreempt:
		return "preempt"
	case KindSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("trace: unknown event kind %q", b)
	}
	*k = v
	return nil
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "tick":
		return KindTick, true
	case "preempt":
		return KindPreempt, true
	case "switch":
		return KindSwitch, true
	}
	return 0, false
}

// Event is one scheduling event. For ticks and preemptions From and To are
// both the task that was running.
type Event struct {
	Seq       uint64        `json:"seq"`
	Tick      uint64        `json:"tick"`
	Kind      Kind          `json:"kind"`
	From      kernel.TaskID `json:"from"`
	To        kernel.TaskID `json:"to"`
	Remaining uint32        `json:"remaining"`
}

// TaskStats accumulates per-task scheduling counts.
type TaskStats struct {
	Ticks       uint64 `json:"ticks"`
	Preemptions uint64 `json:"preemptions"`
	Dispatches  uint64 `json:"dispatches"`
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTickEvents also records every tick in the ring. Ticks are always
// counted in TaskStats.
func WithTickEvents() Option {
	return func(r *Recorder) { r.ticks = true }
}

// Recorder is a kernel.Observer that keeps the most recent events in a fixed
// ring. Recording never allocates.
type Recorder struct {
	mu    sync.Mutex
	ring  []Event
	next  int
	seq   uint64
	ticks bool
	stats [kernel.MaxTasks]TaskStats
}

var _ kernel.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder holding up to capacity events.
func NewRecorder(capacity int, opts ...Option) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{ring: make([]Event, capacity)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) OnTick(tick uint64, current kernel.TaskID, remaining uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[current].Ticks++
	if r.ticks {
		r.push(Event{Tick: tick, Kind: KindTick, From: current, To: current, Remaining: remaining})
	}
}

func (r *Recorder) OnPreempt(tick uint64, id kernel.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[id].Preemptions++
	r.push(Event{Tick: tick, Kind: KindPreempt, From: id, To: id})
}

// OnSwitch records only switches that change the running task.
func (r *Recorder) OnSwitch(tick uint64, from, to kernel.TaskID) {
	if from == to {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[to].Dispatches++
	r.push(Event{Tick: tick, Kind: KindSwitch, From: from, To: to})
}

func (r *Recorder) push(e Event) {
	r.seq++
	e.Seq = r.seq
	r.ring[r.next] = e
	r.next = (r.next + 1) % len(r.ring)
}

// Total returns the number of events recorded, including overwritten ones.
func (r *Recorder) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	return r.Recent(len(r.ring))
}

// Recent returns up to n of the newest events, oldest first.
func (r *Recorder) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := len(r.ring)
	if r.seq < uint64(held) {
		held = int(r.seq)
	}
	if n > held {
		n = held
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	start := r.next - n
	if start < 0 {
		start += len(r.ring)
	}
	for i := range out {
		out[i] = r.ring[(start+i)%len(r.ring)]
	}
	return out
}

// TaskStats returns the counts for one task.
func (r *Recorder) TaskStats(id kernel.TaskID) TaskStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.stats) {
		return TaskStats{}
	}
	return r.stats[id]
}
