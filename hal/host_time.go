package hal

import "time"

// maxLag bounds how many ticks of backlog a Pacer lets the core catch up on
// without sleeping.
const maxLag = 50

// Pacer holds a tick source to wall-clock time: each Wait returns no earlier
// than one tick after the previous one, on average.
type Pacer struct {
	tick time.Duration

	last time.Time
	acc  time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// NewPacer returns a Pacer for ticks of duration tick.
func NewPacer(tick time.Duration) *Pacer {
	return &Pacer{tick: tick, now: time.Now, sleep: time.Sleep}
}

// Wait consumes one tick of wall time, sleeping if the caller is ahead.
func (p *Pacer) Wait() {
	now := p.now()
	if p.last.IsZero() {
		p.last = now
		p.acc = 0
		return
	}

	p.acc += now.Sub(p.last)
	p.last = now
	if p.acc < p.tick {
		p.sleep(p.tick - p.acc)
		now = p.now()
		p.acc += now.Sub(p.last)
		p.last = now
	}
	p.acc -= p.tick
	if p.acc > maxLag*p.tick {
		p.acc = 0
	}
}
