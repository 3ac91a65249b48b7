package kernel

// TaskID identifies a task by its registry slot.
//
// Slots are handed out in creation order and never reused, so an ID stays valid
// for the lifetime of the scheduler.
type TaskID uint8

// TaskState is the lifecycle state of a task.
type TaskState uint8

const (
	Ready TaskState = iota
	Running
	Blocked
	Suspended
)

func (s TaskState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Entry is a task entry point. arg is delivered unchanged on first dispatch.
type Entry func(arg uintptr)

// ExecState is a task's private stack plus its saved stack pointer, an offset
// into Stack.
//
// The frame below SP is laid out by the Arch implementation. The scheduler
// never reads or writes it.
type ExecState struct {
	Stack [StackSize]byte
	SP    uint32
}

// TCB is a task control block.
type TCB struct {
	exec ExecState

	entry Entry
	arg   uintptr

	priority  uint8 // 0 is highest
	slice     uint32
	remaining uint32
	state     TaskState

	// wake is the tick at which a Blocked task becomes Ready again.
	wake uint64

	name string
}

// prime lays out the initial frame so the first Resume enters entry(arg).
func (t *TCB) prime(a Arch) {
	a.Prime(&t.exec, t.entry, t.arg)
}

func (t *TCB) info(id TaskID) TaskInfo {
	return TaskInfo{
		ID:        id,
		Name:      t.name,
		Priority:  t.priority,
		TimeSlice: t.slice,
		Remaining: t.remaining,
		State:     t.state,
		Arg:       t.arg,
	}
}

// TaskInfo is a copy of a task's scheduling fields, for diagnostics.
type TaskInfo struct {
	ID        TaskID
	Name      string
	Priority  uint8
	TimeSlice uint32
	Remaining uint32
	State     TaskState
	Arg       uintptr
}
