package closurec

import (
	"github.com/rs/zerolog"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/vm"
)

// DefaultParallelism is the number of modules CompileAll compiles at once
// unless WithParallelism says otherwise.
const DefaultParallelism = 4

// Option configures a compilation.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	version     uint32
	parallelism int
	verify      bool
	vmOptions   []vm.Option
}

func collectOptions(opts ...Option) *options {
	o := &options{
		logger:      zerolog.Nop(),
		version:     bytecode.DefaultVersion,
		parallelism: DefaultParallelism,
		verify:      true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithLogger sets the logger that receives per-stage debug events and
// warnings for rejected modules.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFormatVersion selects the binary format version to emit. Modules
// with closures need bytecode.ClosureVersion or later.
func WithFormatVersion(version uint32) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithParallelism bounds how many modules CompileAll compiles at once.
// Values below one are ignored.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithoutVerification skips the verifier. The binary is still decoded
// again to check the round trip.
func WithoutVerification() Option {
	return func(o *options) {
		o.verify = false
	}
}

// WithVMOptions supplies options for Result.Call.
func WithVMOptions(opts ...vm.Option) Option {
	return func(o *options) {
		o.vmOptions = append(o.vmOptions, opts...)
	}
}
