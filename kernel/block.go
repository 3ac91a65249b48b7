package kernel

// Delay blocks the calling task for n ticks and gives up the processor.
//
// It must be called from task code after Start. Some other task has to stay
// Ready meanwhile (an idle task at the lowest priority); otherwise the caller
// keeps running and Delay returns early.
func (s *Scheduler) Delay(n uint32) {
	if !s.running {
		panic("kernel: Delay called before Start")
	}
	if n == 0 {
		return
	}

	state := s.port.DisableInterrupts()
	t := &s.tasks[s.current]
	t.state = Blocked
	t.wake = s.ticks + uint64(n)
	s.port.PendSwitch()
	s.port.RestoreInterrupts(state)
}

// SuspendTask takes a task out of dispatch until ResumeTask. A task may
// suspend itself, which gives up the processor.
func (s *Scheduler) SuspendTask(id TaskID) {
	s.mustExist(id)

	state := s.port.DisableInterrupts()
	t := &s.tasks[id]
	t.state = Suspended
	t.wake = 0
	if s.running && id == s.current {
		s.port.PendSwitch()
	}
	s.port.RestoreInterrupts(state)
}

// ResumeTask makes a suspended task Ready again and preempts the caller if the
// resumed task outranks it.
func (s *Scheduler) ResumeTask(id TaskID) {
	s.mustExist(id)

	state := s.port.DisableInterrupts()
	t := &s.tasks[id]
	if t.state == Suspended {
		t.state = Ready
		if s.running && t.priority < s.tasks[s.current].priority {
			s.port.PendSwitch()
		}
	}
	s.port.RestoreInterrupts(state)
}

func (s *Scheduler) mustExist(id TaskID) {
	if int(id) >= int(s.count) {
		panic("kernel: no such task")
	}
}
