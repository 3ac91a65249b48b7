package hal

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tickos/arch/cortexm"
	"tickos/kernel"
)

var (
	// ErrTaskReturned reports a task entry function that returned. Tasks
	// have no return path: LR holds EXC_RETURN.
	ErrTaskReturned = errors.New("task returned from its entry function")
	// ErrBadPC reports a restored PC outside the text segment.
	ErrBadPC = errors.New("pc outside text segment")
	// ErrTickConfig reports a tick rate the SysTick reload register cannot hold.
	ErrTickConfig = errors.New("systick reload out of range")
)

const (
	// DefaultCoreClockHz is the core clock when none is configured.
	DefaultCoreClockHz = 16_000_000

	// textBase is where entry points are placed in the emulated flash.
	textBase uint32 = 0x0800_0400

	maxReload = 0x00FF_FFFF

	excPendSV  = 14
	excSysTick = 15

	// threadPriority is the execution priority with no active exception.
	threadPriority = 0x100

	sysTickPriority = 0x00
	pendSVPriority  = 0xFF
)

// MachineConfig configures an emulated core.
type MachineConfig struct {
	CoreClockHz uint32

	// HaltAfterTicks stops the machine once that many SysTick interrupts
	// have been handled and any switch they pended has been taken. Zero runs
	// until Halt.
	HaltAfterTicks uint64

	// Realtime paces SysTick to wall-clock time.
	Realtime bool

	Logger *slog.Logger
}

type exception struct {
	priority uint8
	enabled  bool
	pending  bool
	active   bool
	handler  func()
}

type sysTick struct {
	enabled bool
	reload  uint32
	current uint32
}

// taskContext is a started task: the goroutine that runs it parks on wake.
type taskContext struct {
	wake chan struct{}
}

// Machine is an emulated single-core Cortex-M class processor.
//
// Task code runs on goroutines, exactly one at a time: the one that owns the
// core. Time advances only through Exec. Machine implements kernel.Arch and
// kernel.Port.
type Machine struct {
	cfg MachineConfig
	log *slog.Logger

	// bus is held by the core owner. Inspect takes it from outside.
	bus sync.Mutex

	regs    cortexm.Regs
	primask bool
	execPri int
	nvic    [16]exception
	systick sysTick
	tickHz  uint32

	cycles   uint64
	sysTicks uint64
	haltDue  bool
	pacer    *Pacer

	text []kernel.Entry
	ctxs map[*kernel.ExecState]*taskContext
	cur  *taskContext

	launched atomic.Bool
	halted   chan struct{}
	haltOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewMachine returns a powered-on core with no task loaded.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.CoreClockHz == 0 {
		cfg.CoreClockHz = DefaultCoreClockHz
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "machine"),
		execPri: threadPriority,
		ctxs:    make(map[*kernel.ExecState]*taskContext),
		halted:  make(chan struct{}),
	}
}

// Boot runs start on the core, typically (*kernel.Scheduler).Start. It returns
// once the machine halts, with the first fault if there was one.
func (m *Machine) Boot(start func()) error {
	m.bus.Lock()
	start()
	if !m.launched.Load() {
		m.bus.Unlock()
		m.Halt()
	}
	<-m.halted
	return m.Err()
}

// Exec executes n instructions of the calling task. SysTick counts down
// once per instruction, and pending exceptions are taken between
// instructions. It must only be called from task code.
func (m *Machine) Exec(n int) {
	if m.cur == nil {
		panic("hal: Exec called outside a task")
	}
	for i := 0; i < n; i++ {
		if m.haltDue && !m.nvic[excPendSV].pending {
			m.Halt()
		}
		if m.stopped() {
			m.exit()
		}
		m.cycles++
		m.regs.PC += 2
		if m.systick.enabled {
			m.systick.current--
			if m.systick.current == 0 {
				m.systick.current = m.systick.reload
				m.nvic[excSysTick].pending = true
				m.window()
			}
		}
		m.service()
	}
}

// Regs returns the register file of the running task.
func (m *Machine) Regs() *cortexm.Regs { return &m.regs }

// Inspect runs fn with the core stopped, the way a debug probe halts it.
// It must not be called from task code.
func (m *Machine) Inspect(fn func()) {
	m.bus.Lock()
	defer m.bus.Unlock()
	fn()
}

// Halt stops the machine. The core owner exits at its next instruction
// boundary.
func (m *Machine) Halt() {
	m.haltOnce.Do(func() { close(m.halted) })
}

// Done is closed once the machine halts.
func (m *Machine) Done() <-chan struct{} { return m.halted }

// Err returns the fault that halted the machine, if any.
func (m *Machine) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// MachineStats is a copy of the core counters.
type MachineStats struct {
	CoreClockHz uint32
	TickHz      uint32
	Reload      uint32
	Cycles      uint64
	SysTicks    uint64
	PendSV      bool
	Halted      bool
}

// Stats reads the core counters. Call it from task code or inside Inspect.
func (m *Machine) Stats() MachineStats {
	return MachineStats{
		CoreClockHz: m.cfg.CoreClockHz,
		TickHz:      m.tickHz,
		Reload:      m.systick.reload,
		Cycles:      m.cycles,
		SysTicks:    m.sysTicks,
		PendSV:      m.nvic[excPendSV].pending,
		Halted:      m.stopped(),
	}
}

// Prime places entry in the text segment and lays out the initial frame.
func (m *Machine) Prime(x *kernel.ExecState, entry kernel.Entry, arg uintptr) {
	addr := textBase + uint32(len(m.text))*4
	m.text = append(m.text, entry)
	x.SP = cortexm.Prime(x.Stack[:], addr, uint32(arg))
	delete(m.ctxs, x)
}

// Suspend saves the live register file on the outgoing task's stack.
func (m *Machine) Suspend(x *kernel.ExecState) {
	sp, err := cortexm.Push(x.Stack[:], m.regs.SP, &m.regs)
	if err != nil {
		m.fault(fmt.Errorf("suspend: %w", err))
		return
	}
	x.SP = sp
	m.ctxs[x] = m.cur
}

// Resume restores x and hands it the core. The caller parks until its own
// context is resumed.
func (m *Machine) Resume(x *kernel.ExecState) {
	caller := m.cur
	if m.stopped() {
		m.exit()
		return
	}
	if err := cortexm.Pop(x.Stack[:], x.SP, &m.regs); err != nil {
		m.fault(fmt.Errorf("resume: %w", err))
		return
	}

	if c, ok := m.ctxs[x]; ok {
		m.cur = c
		select {
		case c.wake <- struct{}{}:
		case <-m.halted:
			m.cur = caller
			m.exit()
			return
		}
	} else {
		entry, err := m.lookup(m.regs.PC)
		if err != nil {
			m.fault(err)
			return
		}
		c := &taskContext{wake: make(chan struct{})}
		m.ctxs[x] = c
		m.cur = c
		m.launched.Store(true)
		go m.enter(entry, uintptr(m.regs.R[0]))
	}
	m.park(caller)
}

// ConfigureTick programs SysTick like SysTick_Config(SystemCoreClock / hz).
func (m *Machine) ConfigureTick(hz uint32, isr func()) {
	if hz == 0 || m.cfg.CoreClockHz/hz == 0 || m.cfg.CoreClockHz/hz > maxReload {
		m.fault(fmt.Errorf("%w: %d Hz at %d Hz core clock", ErrTickConfig, hz, m.cfg.CoreClockHz))
		return
	}
	m.tickHz = hz
	m.systick = sysTick{enabled: true, reload: m.cfg.CoreClockHz / hz, current: m.cfg.CoreClockHz / hz}
	if m.cfg.Realtime {
		m.pacer = NewPacer(time.Second / time.Duration(hz))
	}
	m.nvic[excSysTick] = exception{
		priority: sysTickPriority,
		enabled:  true,
		handler: func() {
			isr()
			m.sysTicks++
			// Halting here would strand a preempted task as Ready with
			// PendSV still pending.
			if m.cfg.HaltAfterTicks > 0 && m.sysTicks >= m.cfg.HaltAfterTicks {
				m.haltDue = true
			}
		},
	}
	m.log.Debug("systick configured", "hz", hz, "reload", m.systick.reload)
}

// ConfigureSwitch routes PendSV to isr at the lowest priority.
func (m *Machine) ConfigureSwitch(isr func()) {
	m.nvic[excPendSV] = exception{
		priority: pendSVPriority,
		enabled:  true,
		handler:  isr,
	}
}

// PendSwitch sets PENDSVSET. From unmasked thread mode the switch is taken
// before PendSwitch returns.
func (m *Machine) PendSwitch() {
	m.nvic[excPendSV].pending = true
	if m.execPri == threadPriority && !m.primask {
		m.service()
	}
}

// DisableInterrupts sets PRIMASK and returns its previous value.
func (m *Machine) DisableInterrupts() uintptr {
	prev := m.primask
	m.primask = true
	if prev {
		return 1
	}
	return 0
}

// RestoreInterrupts restores PRIMASK. Exceptions that became pending while
// masked are taken when it clears.
func (m *Machine) RestoreInterrupts(state uintptr) {
	m.primask = state != 0
	if !m.primask && m.execPri == threadPriority {
		m.service()
	}
}

// service takes pending exceptions that beat the execution priority.
func (m *Machine) service() {
	for !m.primask {
		exc := m.nextException()
		if exc == 0 {
			return
		}
		if m.stopped() {
			m.exit()
			return
		}
		m.take(exc)
	}
}

// nextException returns the pending exception to take, or 0. Equal
// priorities resolve to the lower exception number.
func (m *Machine) nextException() int {
	best := 0
	for n := range m.nvic {
		e := &m.nvic[n]
		if !e.enabled || !e.pending || e.active || int(e.priority) >= m.execPri {
			continue
		}
		if best == 0 || e.priority < m.nvic[best].priority {
			best = n
		}
	}
	return best
}

func (m *Machine) take(n int) {
	e := &m.nvic[n]
	e.pending = false
	e.active = true
	prev := m.execPri
	m.execPri = int(e.priority)

	e.handler()

	// Re-read: a context switch may have run other tasks in between.
	e = &m.nvic[n]
	e.active = false
	m.execPri = prev
}

// enter runs a freshly started context. Its exception return happens here
// since no handler frame exists on this goroutine.
func (m *Machine) enter(entry kernel.Entry, arg uintptr) {
	m.nvic[excPendSV].active = false
	m.execPri = threadPriority
	if m.stopped() {
		m.exit()
	}

	entry(arg)

	if m.stopped() {
		m.exit()
	}
	m.fault(fmt.Errorf("%w: branch to %#08x", ErrTaskReturned, m.regs.LR))
}

func (m *Machine) lookup(pc uint32) (kernel.Entry, error) {
	off := pc - textBase
	if pc < textBase || off%4 != 0 || int(off/4) >= len(m.text) {
		return nil, fmt.Errorf("%w: %#08x", ErrBadPC, pc)
	}
	return m.text[off/4], nil
}

// park blocks the goroutine that just gave up the core. The boot goroutine
// has no context and waits for halt.
func (m *Machine) park(c *taskContext) {
	if c == nil {
		<-m.halted
		return
	}
	select {
	case <-c.wake:
	case <-m.halted:
		runtime.Goexit()
	}
}

// window releases the bus once per tick so Inspect can run.
func (m *Machine) window() {
	m.bus.Unlock()
	if m.pacer != nil {
		m.pacer.Wait()
	}
	m.bus.Lock()
}

func (m *Machine) stopped() bool {
	select {
	case <-m.halted:
		return true
	default:
		return false
	}
}

// exit retires the core owner after halt. The boot goroutine returns to Boot
// instead.
func (m *Machine) exit() {
	if m.cur == nil {
		return
	}
	m.bus.Unlock()
	runtime.Goexit()
}

func (m *Machine) fault(err error) {
	m.errMu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.errMu.Unlock()
	m.log.Error("fault", "err", err, "regs", m.regs.String())
	m.Halt()
	m.exit()
}
