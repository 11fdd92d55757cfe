package vm

import "github.com/rs/zerolog"

// Option configures a VirtualMachine in New.
type Option func(*VirtualMachine)

// WithContextCheckInterval makes the interpreter poll ctx every interval
// instructions (DefaultContextCheckInterval unless set). With 0, only the
// watcher goroutine started by Call stops a cancelled run.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithObserver attaches observer. Its Config is read once, by New.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}

// WithMaxFrameDepth lowers the call depth limit below MaxFrameDepth.
func WithMaxFrameDepth(depth int) Option {
	return func(vm *VirtualMachine) {
		if depth > 0 && depth < MaxFrameDepth {
			vm.maxFrameDepth = depth
		}
	}
}

// WithLogger sets the logger used for call tracing at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.logger = logger
	}
}
