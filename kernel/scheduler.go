// Package kernel is a fixed-capacity, priority-preemptive task scheduler for a
// single-core, interrupt-driven machine.
//
// A periodic timer drives Tick, which accounts time slices and pends a
// deferred switch. The platform runs Switch at its lowest interrupt priority,
// so a context switch never nests inside the tick path. Everything the
// scheduler knows about registers and stacks sits behind Arch, and everything
// it knows about interrupts sits behind Port.
//
// Precondition violations (Create after Start, a nil entry, a zero time slice,
// Start twice) panic instead of corrupting state.
package kernel

// Arch saves and restores task execution state.
//
// Resume does not return to its caller until the caller's own context is
// resumed again. The first Resume of a primed ExecState enters entry(arg).
type Arch interface {
	Prime(x *ExecState, entry Entry, arg uintptr)
	Suspend(x *ExecState)
	Resume(x *ExecState)
}

// Port is the platform's interrupt plumbing.
type Port interface {
	// ConfigureTick starts the periodic timer at hz and routes it to isr.
	ConfigureTick(hz uint32, isr func())
	// ConfigureSwitch routes the deferred switch interrupt to isr at the
	// lowest priority.
	ConfigureSwitch(isr func())
	// PendSwitch requests the deferred switch interrupt.
	PendSwitch()

	DisableInterrupts() uintptr
	RestoreInterrupts(state uintptr)
}

// Observer is notified from interrupt context. Implementations must not block.
type Observer interface {
	OnTick(tick uint64, current TaskID, remaining uint32)
	OnPreempt(tick uint64, id TaskID)
	OnSwitch(tick uint64, from, to TaskID)
}

// Phase is the scheduler lifecycle state.
type Phase uint8

const (
	Uninitialized Phase = iota
	Initialized
	Started
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Started:
		return "started"
	default:
		return "unknown"
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithObserver installs an event hook.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.obs = o
	}
}

// Scheduler is the process-wide scheduler instance.
type Scheduler struct {
	arch Arch
	port Port
	obs  Observer

	tasks   [MaxTasks]TCB
	count   uint8
	current TaskID
	ticks   uint64
	running bool
	phase   Phase
}

// New returns an uninitialized scheduler bound to arch and port.
func New(arch Arch, port Port, opts ...Option) *Scheduler {
	s := &Scheduler{arch: arch, port: port}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init zeroes all scheduler state. Calling it after tasks exist discards them.
func (s *Scheduler) Init() {
	arch, port, obs := s.arch, s.port, s.obs
	*s = Scheduler{arch: arch, port: port, obs: obs, phase: Initialized}
}

// Create registers a task in the next free slot and primes its stack.
//
// It must not be called after Start.
func (s *Scheduler) Create(entry Entry, arg uintptr, priority uint8, timeSlice uint32, name string) (TaskID, error) {
	switch s.phase {
	case Uninitialized:
		panic("kernel: Create called before Init")
	case Started:
		panic("kernel: Create called after Start")
	}
	if entry == nil {
		panic("kernel: Create with nil entry")
	}
	if timeSlice == 0 {
		panic("kernel: Create with zero time slice")
	}
	if int(s.count) >= MaxTasks {
		return 0, &CapacityError{Name: name, Max: MaxTasks}
	}

	id := TaskID(s.count)
	t := &s.tasks[id]
	*t = TCB{
		entry:     entry,
		arg:       arg,
		priority:  priority,
		slice:     timeSlice,
		remaining: timeSlice,
		state:     Ready,
		name:      name,
	}
	t.prime(s.arch)
	s.count++
	return id, nil
}

// Start begins dispatching. It is a no-op when no task exists.
//
// On hardware Start never returns; it becomes the first task. Emulated
// platforms return from it once the machine halts.
func (s *Scheduler) Start() {
	if s.count == 0 {
		return
	}
	if s.phase == Started {
		panic("kernel: Start called twice")
	}

	s.port.ConfigureTick(TickRateHz, s.Tick)
	s.port.ConfigureSwitch(s.Switch)

	s.phase = Started
	s.running = true
	s.current = s.SelectNext()

	first := &s.tasks[s.current]
	first.state = Running
	s.arch.Resume(&first.exec)
}

// Phase reports the lifecycle state.
func (s *Scheduler) Phase() Phase { return s.phase }

// Running reports whether dispatch and preemption are active.
func (s *Scheduler) Running() bool { return s.running }

// Count returns the number of created tasks.
func (s *Scheduler) Count() int { return int(s.count) }

// Current returns the task selected to run. It is only meaningful once started.
func (s *Scheduler) Current() TaskID { return s.current }

// Ticks returns the number of ticks since Init.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Task returns a copy of the task's scheduling fields.
func (s *Scheduler) Task(id TaskID) (TaskInfo, bool) {
	if int(id) >= int(s.count) {
		return TaskInfo{}, false
	}
	return s.tasks[id].info(id), true
}

// Snapshot is a point-in-time copy of the scheduler state.
type Snapshot struct {
	Phase   Phase
	Running bool
	Ticks   uint64
	Current TaskID
	Tasks   []TaskInfo
}

// Snapshot copies the scheduler state. It is not interrupt-safe; callers on
// other goroutines must hold the platform's debug access.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:   s.phase,
		Running: s.running,
		Ticks:   s.ticks,
		Current: s.current,
		Tasks:   make([]TaskInfo, 0, s.count),
	}
	for i := uint8(0); i < s.count; i++ {
		snap.Tasks = append(snap.Tasks, s.tasks[i].info(TaskID(i)))
	}
	return snap
}
