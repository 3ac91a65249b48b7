package kernel

// SelectNext returns the Ready task with the numerically smallest priority.
//
// Ties go to the smallest registry index. This is a fixed order, not a
// rotation: of two equal-priority Ready tasks the lower-indexed one always
// wins, so they never time-share. With no Ready task the current selection is
// returned unchanged.
func (s *Scheduler) SelectNext() TaskID {
	next := s.current
	best := -1
	for i := 0; i < int(s.count); i++ {
		t := &s.tasks[i]
		if t.state != Ready {
			continue
		}
		if best < 0 || int(t.priority) < best {
			best = int(t.priority)
			next = TaskID(i)
		}
	}
	return next
}
