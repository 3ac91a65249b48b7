package kernel

import (
	"errors"
	"fmt"
)

// ErrCapacity is matched by the error Create returns when the registry is full.
var ErrCapacity = errors.New("kernel: task registry full")

// CapacityError reports a rejected Create. The registry is left unchanged.
type CapacityError struct {
	Name string
	Max  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("kernel: create %q: registry full (%d tasks)", e.Name, e.Max)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}
