package kernel

// Switch is the deferred context-switch handler.
//
// The platform must run it at its lowest interrupt priority, after every
// higher-priority handler (Tick included) has drained, and never re-enter it.
// A still-Running outgoing task is demoted to Ready before selection. When
// nothing is Ready (every task blocked or suspended, a configuration error) the
// current task keeps the processor.
func (s *Scheduler) Switch() {
	if !s.running {
		return
	}

	prev := s.current
	out := &s.tasks[prev]
	if out.state == Running {
		out.state = Ready
	}

	next := s.SelectNext()
	in := &s.tasks[next]
	if in.state != Ready {
		return
	}
	in.state = Running
	s.current = next
	if s.obs != nil {
		s.obs.OnSwitch(s.ticks, prev, next)
	}
	if next == prev {
		return
	}

	s.arch.Suspend(&out.exec)
	s.arch.Resume(&in.exec)
}
