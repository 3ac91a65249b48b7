package hal

import (
	"fmt"
	"io"
	"sync"
)

// NewConsole returns a console that writes lines to w.
func NewConsole(w io.Writer) Logger {
	return &hostLogger{w: w}
}

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

// NewLED returns an LED that reports its transitions on console.
func NewLED(name string, console Logger) LED {
	return &hostLED{name: name, logger: console}
}

type hostLED struct {
	mu     sync.Mutex
	name   string
	on     bool
	logger Logger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on {
		return
	}
	l.on = true
	l.logger.WriteLineString(l.name + ": HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.on {
		return
	}
	l.on = false
	l.logger.WriteLineString(l.name + ": LOW")
}
