package kernel

// Build-time tuning. None of these can be changed at runtime.
const (
	// MaxTasks is the registry capacity.
	MaxTasks = 32

	// TickRateHz is the rate Start configures the periodic timer for.
	TickRateHz = 1000

	// StackSize is the size in bytes of each task's private stack (1024 words).
	StackSize = 1024 * 4
)
