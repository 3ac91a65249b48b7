package kernel

// Tick is the periodic timer handler.
//
// It always advances the tick counter, even before Start. Once started it
// charges the running task one tick and, when its slice is used up, refills
// the slice, marks the task Ready and pends the deferred switch. It also
// readies delayed tasks whose wake tick has come, pending a switch when one
// of them outranks the running task. Tick never switches context itself.
func (s *Scheduler) Tick() {
	s.ticks++
	if !s.running {
		return
	}

	pend := false
	cur := &s.tasks[s.current]
	if cur.state == Running {
		cur.remaining--
		if s.obs != nil {
			s.obs.OnTick(s.ticks, s.current, cur.remaining)
		}
		if cur.remaining == 0 {
			cur.remaining = cur.slice
			cur.state = Ready
			if s.obs != nil {
				s.obs.OnPreempt(s.ticks, s.current)
			}
			pend = true
		}
	}

	if s.wakeDelayed() {
		pend = true
	}
	if pend {
		s.port.PendSwitch()
	}
}

// wakeDelayed readies Blocked tasks that are due and reports whether any of
// them should preempt the current task.
func (s *Scheduler) wakeDelayed() (preempt bool) {
	cur := &s.tasks[s.current]
	for i := uint8(0); i < s.count; i++ {
		t := &s.tasks[i]
		if t.state != Blocked || t.wake > s.ticks {
			continue
		}
		t.state = Ready
		t.wake = 0
		if cur.state != Running || t.priority < cur.priority {
			preempt = true
		}
	}
	return preempt
}
