package tasks

import (
	"fmt"
	"strings"

	"tickos/kernel"
)

const (
	defaultSpinChunk = 100
	defaultBurst     = 16_000
	burstRest        = 5
	defaultHalfCycle = 500
	defaultPeriod    = 1000
	idleChunk        = 64
)

// Spin never gives up the processor. arg is the instructions executed
// between checks (default 100).
func Spin(env Env) kernel.Entry {
	return func(arg uintptr) {
		n := int(arg)
		if n <= 0 {
			n = defaultSpinChunk
		}
		for {
			env.Machine.Exec(n)
		}
	}
}

// Burst executes arg instructions, then sleeps for a few ticks.
func Burst(env Env) kernel.Entry {
	return func(arg uintptr) {
		n := int(arg)
		if n <= 0 {
			n = defaultBurst
		}
		for {
			env.Machine.Exec(n)
			env.Scheduler.Delay(burstRest)
		}
	}
}

// Blink toggles the LED every arg ticks.
func Blink(env Env) kernel.Entry {
	return func(arg uintptr) {
		half := uint32(arg)
		if half == 0 {
			half = defaultHalfCycle
		}
		for on := true; ; on = !on {
			if on {
				env.LED.High()
			} else {
				env.LED.Low()
			}
			env.Scheduler.Delay(half)
		}
	}
}

// Report writes the task table to the console every arg ticks.
func Report(env Env) kernel.Entry {
	return func(arg uintptr) {
		period := uint32(arg)
		if period == 0 {
			period = defaultPeriod
		}
		var b strings.Builder
		for {
			snap := env.Scheduler.Snapshot()
			b.Reset()
			fmt.Fprintf(&b, "t=%d", snap.Ticks)
			for _, t := range snap.Tasks {
				fmt.Fprintf(&b, " %s:%s", t.Name, t.State)
			}
			env.Console.WriteLineString(b.String())
			env.Scheduler.Delay(period)
		}
	}
}

// Idle soaks up time no other task wants. Give it the lowest priority.
func Idle(env Env) kernel.Entry {
	return func(uintptr) {
		for {
			env.Machine.Exec(idleChunk)
		}
	}
}
