package kernel

import "testing"

type primedEntry struct {
	entry Entry
	arg   uintptr
}

// fakeArch records context operations without touching any stack contents
// beyond the saved SP.
type fakeArch struct {
	primed   map[*ExecState]primedEntry
	suspends []*ExecState
	resumes  []*ExecState
}

func newFakeArch() *fakeArch {
	return &fakeArch{primed: make(map[*ExecState]primedEntry)}
}

func (a *fakeArch) Prime(x *ExecState, entry Entry, arg uintptr) {
	a.primed[x] = primedEntry{entry: entry, arg: arg}
	x.SP = StackSize - 64
}

func (a *fakeArch) Suspend(x *ExecState) { a.suspends = append(a.suspends, x) }
func (a *fakeArch) Resume(x *ExecState)  { a.resumes = append(a.resumes, x) }

// fakePort records configuration and pend requests. Tests deliver the
// deferred switch themselves via drain.
type fakePort struct {
	tickHz    uint32
	tickISR   func()
	switchISR func()
	pending   bool
	pends     int
	masked    bool
}

func (p *fakePort) ConfigureTick(hz uint32, isr func()) {
	p.tickHz = hz
	p.tickISR = isr
}

func (p *fakePort) ConfigureSwitch(isr func()) { p.switchISR = isr }

func (p *fakePort) PendSwitch() {
	p.pending = true
	p.pends++
}

func (p *fakePort) DisableInterrupts() uintptr {
	prev := p.masked
	p.masked = true
	if prev {
		return 1
	}
	return 0
}

func (p *fakePort) RestoreInterrupts(state uintptr) { p.masked = state != 0 }

// drain runs the deferred switch if one is pending, the way the platform
// tail-chains it after the tick handler returns.
func (p *fakePort) drain() {
	if !p.pending || p.switchISR == nil {
		return
	}
	p.pending = false
	p.switchISR()
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *fakeArch, *fakePort) {
	t.Helper()
	arch := newFakeArch()
	port := &fakePort{}
	s := New(arch, port, opts...)
	s.Init()
	return s, arch, port
}

func noop(uintptr) {}

func mustCreate(t *testing.T, s *Scheduler, priority uint8, slice uint32, name string) TaskID {
	t.Helper()
	id, err := s.Create(noop, 0, priority, slice, name)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	return id
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func states(s *Scheduler) []TaskState {
	out := make([]TaskState, s.Count())
	for i := range out {
		info, _ := s.Task(TaskID(i))
		out[i] = info.State
	}
	return out
}
