package vm

import (
	"github.com/simon-1M/closurec/op"
)

// StepMode selects which instructions are reported through OnStep.
type StepMode uint8

const (
	// StepAll reports every instruction.
	StepAll StepMode = iota
	// StepNone reports no instructions; calls and returns still are.
	StepNone
	// StepSampled reports one instruction in every SampleInterval.
	StepSampled
	// StepOnBlock reports the first instruction of each basic block, as
	// given by bytecode.Leaders.
	StepOnBlock
)

// ObserverConfig is read once, when the observer is attached.
type ObserverConfig struct {
	StepMode StepMode
	// SampleInterval applies to StepSampled only. Values below 1 act as 1.
	SampleInterval int
	ObserveCalls   bool
	ObserveReturns bool
}

// NewObserverConfig returns a config for mode with call and return
// events enabled and a sample interval of 1000 instructions.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

func (c ObserverConfig) normalized() ObserverConfig {
	if c.StepMode == StepSampled && c.SampleInterval < 1 {
		c.SampleInterval = 1
	}
	return c
}

// Observer receives execution events synchronously from the interpreter
// loop. Returning false from any callback halts the call with ErrHalted.
// Embed NoOpObserver to implement only some of the callbacks.
type Observer interface {
	Config() ObserverConfig
	OnStep(event StepEvent) bool
	OnCall(event CallEvent) bool
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes the instruction about to execute.
type StepEvent struct {
	Function   string
	Offset     int
	Opcode     op.Code
	OpcodeName string
	// StackDepth counts operand stack values across all frames.
	StackDepth int
	FrameDepth int
}

// CallEvent describes a function entry. Lifted lambdas appear under their
// generated __lambda__ names.
type CallEvent struct {
	FunctionName string
	// ArgCount includes captured values for closure calls.
	ArgCount   int
	Closure    bool
	FrameDepth int
}

// ReturnEvent describes a function exit. FrameDepth is measured after the
// frame is popped.
type ReturnEvent struct {
	FunctionName string
	ResultCount  int
	FrameDepth   int
}

// NoOpObserver accepts every event. Its config is StepAll with calls and
// returns enabled.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig    { return NewObserverConfig(StepAll) }
func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}
