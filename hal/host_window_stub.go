//go:build !cgo

package hal

import (
	"context"
	"errors"
)

// WindowConfig controls the desktop monitor window.
type WindowConfig struct {
	Framebuffer Framebuffer
	Step        func() error
	Scale       int
}

func RunWindow(_ context.Context, _ *Machine, _ func(), _ WindowConfig) error {
	return errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}
