// Package vm provides a VirtualMachine that executes compiled modules.
//
// The VM trusts its input to have passed the verifier. Checks it still
// performs at run time, such as operand types, stack underflow and branch
// targets, only turn malformed code into errors instead of crashes.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/errz"
	"github.com/simon-1M/closurec/op"
)

const (
	MaxFrameDepth = 1024
	MaxStackDepth = 1 << 16

	// DefaultContextCheckInterval is the number of instructions between
	// deterministic checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

var (
	ErrFunctionNotFound = errors.New("function not found")
	ErrHalted           = errors.New("execution halted by observer")
)

type VirtualMachine struct {
	module    *bytecode.Module
	functions []*loadedFunction
	constants []Value
	// leaders marks the first instruction of every basic block.
	leaders [][]bool

	halt     int32
	running  bool
	runMutex sync.Mutex

	fp     int // frame pointer
	stack  []Value
	frames [MaxFrameDepth]frame

	maxFrameDepth        int
	contextCheckInterval int
	observer             Observer
	observerConfig       ObserverConfig
	stepCount            int
	logger               zerolog.Logger
}

// New creates a Virtual Machine for m. Every function's code is decoded up
// front, so a malformed module is rejected here rather than mid-run.
func New(m *bytecode.Module, options ...Option) (*VirtualMachine, error) {
	vm := &VirtualMachine{
		module:               m,
		fp:                   -1,
		maxFrameDepth:        MaxFrameDepth,
		contextCheckInterval: DefaultContextCheckInterval,
		logger:               zerolog.Nop(),
	}
	for _, opt := range options {
		opt(vm)
	}
	if vm.observer != nil {
		vm.observerConfig = vm.observer.Config().normalized()
	}
	vm.functions = make([]*loadedFunction, len(m.Functions))
	vm.leaders = make([][]bool, len(m.Functions))
	for i := range m.Functions {
		fn, err := loadFunction(m, i)
		if err != nil {
			return nil, err
		}
		vm.functions[i] = fn
		vm.leaders[i] = make([]bool, len(fn.instructions))
		for _, pc := range bytecode.Leaders(fn.instructions) {
			vm.leaders[i][pc] = true
		}
	}
	vm.constants = make([]Value, len(m.Constants))
	for i, c := range m.Constants {
		v, err := loadConstant(c)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		vm.constants[i] = v
	}
	return vm, nil
}

// Module returns the module the VM executes.
func (vm *VirtualMachine) Module() *bytecode.Module {
	return vm.module
}

func (vm *VirtualMachine) start(ctx context.Context) error {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if vm.running {
		return fmt.Errorf("vm is already running")
	}
	vm.running = true
	// Halt execution when the context is cancelled
	atomic.StoreInt32(&vm.halt, 0)
	if doneChan := ctx.Done(); doneChan != nil {
		go func() {
			<-doneChan
			atomic.StoreInt32(&vm.halt, 1)
		}()
	}
	return nil
}

func (vm *VirtualMachine) stop() {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	vm.running = false
}

// Call runs the named function with args and returns its results. The
// function may be of any visibility. Calls on one VM must not overlap.
func (vm *VirtualMachine) Call(ctx context.Context, name string, args ...Value) (results []Value, err error) {
	fn := vm.module.FunctionIndex(name)
	if fn < 0 {
		return nil, errz.NewStructuredErrorf(errz.ErrName, errz.Location{}, nil,
			"function %q not found in %s", name, vm.module.QualifiedName()).WithCause(ErrFunctionNotFound)
	}
	if err := checkCallArgs(vm.functions[fn], args); err != nil {
		return nil, err
	}

	// Set up some guarantees:
	// 1. It is an error to call a VM that is already running
	// 2. The running flag will always be set to false when Call returns
	// 3. Any panics are translated to errors and the VM is stopped
	if err := vm.start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, vm.recovered(r)
		}
		vm.reset()
		vm.stop()
	}()

	vm.logger.Debug().Str("module", vm.module.QualifiedName()).Str("function", name).
		Int("args", len(args)).Msg("call")
	if err := vm.enter(fn, copyArgs(args), false); err != nil {
		return nil, err
	}
	results, err = vm.eval(ctx)
	if err != nil {
		vm.logger.Debug().Str("function", name).Err(err).Msg("call failed")
	}
	return results, err
}

func (vm *VirtualMachine) reset() {
	for i := 0; i <= vm.fp && i < MaxFrameDepth; i++ {
		vm.frames[i] = frame{}
	}
	vm.fp = -1
	vm.stack = vm.stack[:0]
	vm.stepCount = 0
}

func copyArgs(args []Value) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = copyValue(a)
	}
	return out
}

// recovered converts a panic raised during execution into an error.
func (vm *VirtualMachine) recovered(r any) error {
	if se, ok := r.(*errz.StructuredError); ok {
		return se
	}
	err := vm.errorf(errz.ErrRuntime, "panic: %v", r)
	if cause, ok := r.(error); ok {
		err.Cause = cause
	}
	return err
}

// location returns the instruction currently executing.
func (vm *VirtualMachine) location() errz.Location {
	if vm.fp < 0 {
		return errz.Location{}
	}
	f := &vm.frames[vm.fp]
	name, offset := f.location(vm.module)
	return errz.Location{Module: vm.module.QualifiedName(), Function: name, Offset: offset}
}

// stackTrace lists the active frames, innermost first. Caller frames
// report their call site.
func (vm *VirtualMachine) stackTrace() []errz.StackFrame {
	var frames []errz.StackFrame
	for i := vm.fp; i >= 0; i-- {
		name, offset := vm.frames[i].location(vm.module)
		if i < vm.fp {
			offset--
		}
		frames = append(frames, errz.StackFrame{Function: name, Offset: offset})
	}
	return frames
}

func (vm *VirtualMachine) locate(e *errz.StructuredError) *errz.StructuredError {
	e.Location = vm.location()
	e.Stack = vm.stackTrace()
	return e
}

func (vm *VirtualMachine) errorf(kind errz.ErrorKind, format string, args ...any) *errz.StructuredError {
	return vm.locate(errz.NewStructuredErrorf(kind, errz.Location{}, nil, format, args...))
}

// enter pushes a frame for function fn with args in its leading slots.
func (vm *VirtualMachine) enter(fn int, args []Value, closure bool) error {
	if vm.fp+1 >= vm.maxFrameDepth {
		return vm.errorf(errz.ErrLimit, "call depth exceeds %d frames", vm.maxFrameDepth)
	}
	code := vm.functions[fn]
	vm.fp++
	f := &vm.frames[vm.fp]
	f.activate(fn, code, args)
	f.base = len(vm.stack)
	if vm.observer != nil && vm.observerConfig.ObserveCalls {
		event := CallEvent{
			FunctionName: code.name,
			ArgCount:     len(args),
			Closure:      closure,
			FrameDepth:   vm.fp + 1,
		}
		if !vm.observer.OnCall(event) {
			return ErrHalted
		}
	}
	return nil
}

// leave pops the active frame and hands its results to the caller. It
// returns the results when the outermost frame returns.
func (vm *VirtualMachine) leave() ([]Value, bool, error) {
	f := &vm.frames[vm.fp]
	results := vm.popN(f.code.results)
	if len(vm.stack) != f.base {
		return nil, false, vm.errorf(errz.ErrRuntime, "%d values left on the stack at return",
			len(vm.stack)-f.base)
	}
	name := f.code.name
	*f = frame{}
	vm.fp--
	if vm.observer != nil && vm.observerConfig.ObserveReturns {
		event := ReturnEvent{
			FunctionName: name,
			ResultCount:  len(results),
			FrameDepth:   vm.fp + 1,
		}
		if !vm.observer.OnReturn(event) {
			return nil, false, ErrHalted
		}
	}
	if vm.fp < 0 {
		return results, true, nil
	}
	vm.stack = append(vm.stack, results...)
	return nil, false, nil
}

func (vm *VirtualMachine) push(v Value) {
	if len(vm.stack) >= MaxStackDepth {
		panic(vm.errorf(errz.ErrLimit, "operand stack exceeds %d values", MaxStackDepth))
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VirtualMachine) pop() Value {
	n := len(vm.stack)
	if n <= vm.frames[vm.fp].base {
		panic(vm.errorf(errz.ErrRuntime, "operand stack underflow"))
	}
	v := vm.stack[n-1]
	vm.stack[n-1] = nil
	vm.stack = vm.stack[:n-1]
	return v
}

// popN pops n values and returns them in push order.
func (vm *VirtualMachine) popN(n int) []Value {
	top := len(vm.stack)
	if top-n < vm.frames[vm.fp].base {
		panic(vm.errorf(errz.ErrRuntime, "operand stack underflow"))
	}
	out := make([]Value, n)
	copy(out, vm.stack[top-n:])
	for i := top - n; i < top; i++ {
		vm.stack[i] = nil
	}
	vm.stack = vm.stack[:top-n]
	return out
}

func popAs[T any](vm *VirtualMachine, what string) T {
	v := vm.pop()
	t, ok := v.(T)
	if !ok {
		panic(vm.errorf(errz.ErrType, "expected %s, found %s", what, Format(v)))
	}
	return t
}

func (vm *VirtualMachine) shouldStep(f *frame) bool {
	switch vm.observerConfig.StepMode {
	case StepAll:
		return true
	case StepSampled:
		vm.stepCount++
		if vm.stepCount >= vm.observerConfig.SampleInterval {
			vm.stepCount = 0
			return true
		}
		return false
	case StepOnBlock:
		return vm.leaders[f.fn][f.ip]
	default:
		return false
	}
}

// Evaluate the active frame and everything it calls. The caller must have
// entered the outermost frame. The results of that frame are returned.
func (vm *VirtualMachine) eval(ctx context.Context) ([]Value, error) {
	// Instruction counter for deterministic context checking
	var instructionCount int
	checkInterval := vm.contextCheckInterval
	doneChan := ctx.Done()

	for {
		if atomic.LoadInt32(&vm.halt) == 1 {
			return nil, ctx.Err()
		}

		// Deterministic check of ctx.Done() every N instructions.
		// This guarantees responsiveness regardless of goroutine scheduling.
		if checkInterval > 0 && doneChan != nil {
			instructionCount++
			if instructionCount >= checkInterval {
				instructionCount = 0
				select {
				case <-doneChan:
					atomic.StoreInt32(&vm.halt, 1)
					return nil, ctx.Err()
				default:
				}
			}
		}

		f := &vm.frames[vm.fp]
		if f.ip >= len(f.code.instructions) {
			return nil, vm.errorf(errz.ErrRuntime, "control fell off the end of %s", f.code.name)
		}
		instr := f.code.instructions[f.ip]

		if vm.observer != nil && vm.shouldStep(f) {
			event := StepEvent{
				Function:   f.code.name,
				Offset:     f.ip,
				Opcode:     instr.Op,
				OpcodeName: op.GetInfo(instr.Op).Name,
				StackDepth: len(vm.stack),
				FrameDepth: vm.fp + 1,
			}
			if !vm.observer.OnStep(event) {
				return nil, ErrHalted
			}
		}

		switch instr.Op {
		case op.CopyLoc:
			v := vm.local(f, instr)
			vm.push(copyValue(v))
		case op.MoveLoc:
			v := vm.local(f, instr)
			f.locals[instr.Operands[0]] = nil
			vm.push(v)
		case op.StLoc:
			slot := vm.slot(f, instr)
			f.locals[slot] = vm.pop()
		case op.ImmBorrowLoc, op.MutBorrowLoc:
			slot := vm.slot(f, instr)
			vm.push(&Ref{Mutable: instr.Op == op.MutBorrowLoc, cells: f.locals, index: slot})

		case op.ImmBorrowField, op.MutBorrowField:
			r := popAs[*Ref](vm, "reference")
			s, ok := r.Load().(*Struct)
			if !ok {
				return nil, vm.errorf(errz.ErrType, "field borrow through a reference to %s", Format(r.Load()))
			}
			field := int(instr.Operands[1])
			if field >= len(s.Fields) {
				return nil, vm.errorf(errz.ErrRuntime, "field %d of %s out of range", field, s.Name)
			}
			vm.push(&Ref{Mutable: instr.Op == op.MutBorrowField, cells: s.Fields, index: field})
		case op.ReadRef:
			r := popAs[*Ref](vm, "reference")
			vm.push(copyValue(r.Load()))
		case op.WriteRef:
			r := popAs[*Ref](vm, "reference")
			v := vm.pop()
			if !r.Mutable {
				return nil, vm.errorf(errz.ErrType, "write through an immutable reference")
			}
			r.Store(v)

		case op.Pop:
			vm.pop()

		case op.LdU8:
			vm.push(uint8(instr.Operands[0]))
		case op.LdU64:
			vm.push(instr.Operands[0])
		case op.LdTrue:
			vm.push(true)
		case op.LdFalse:
			vm.push(false)
		case op.LdConst:
			i := instr.Operands[0]
			if i >= uint64(len(vm.constants)) {
				return nil, vm.errorf(errz.ErrRuntime, "constant %d out of range", i)
			}
			vm.push(vm.constants[i])

		case op.Add, op.Sub, op.Mul, op.Div, op.Mod, op.BitAnd, op.BitOr, op.Xor,
			op.Lt, op.Le, op.Gt, op.Ge:
			y := vm.pop()
			x := vm.pop()
			v, err := binaryOp(instr.Op, x, y)
			if err != nil {
				return nil, vm.locate(err)
			}
			vm.push(v)
		case op.Eq, op.Neq:
			y := vm.pop()
			x := vm.pop()
			vm.push(Equal(x, y) == (instr.Op == op.Eq))
		case op.Not:
			vm.push(!popAs[bool](vm, "bool"))

		case op.Pack:
			s := instr.Operands[0]
			if s >= uint64(len(vm.module.Structs)) {
				return nil, vm.errorf(errz.ErrRuntime, "struct %d out of range", s)
			}
			def := &vm.module.Structs[s]
			vm.push(&Struct{Name: def.Name, Fields: vm.popN(len(def.Fields))})

		case op.Call:
			fn := vm.function(instr.Operands[0])
			args := vm.popN(len(vm.functions[fn].params))
			f.ip++
			if err := vm.enter(fn, args, false); err != nil {
				return nil, err
			}
			continue
		case op.PackClosure:
			fn := vm.function(instr.Operands[0])
			captured := vm.popN(int(instr.Operands[1]))
			vm.push(&Closure{Function: fn, Name: vm.functions[fn].name, Captured: captured})
		case op.CallClosure:
			params, _, err := signatureArity(vm.module, int(instr.Operands[0]))
			if err != nil {
				return nil, vm.errorf(errz.ErrRuntime, "%v", err)
			}
			c := popAs[*Closure](vm, "closure")
			args := make([]Value, 0, len(c.Captured)+params)
			args = append(args, c.Captured...)
			args = append(args, vm.popN(params)...)
			if want := len(vm.functions[c.Function].params); len(args) != want {
				return nil, vm.errorf(errz.ErrType, "closure over %s supplies %d arguments, want %d",
					c.Name, len(args), want)
			}
			f.ip++
			if err := vm.enter(c.Function, args, true); err != nil {
				return nil, err
			}
			continue

		case op.Branch:
			f.ip = vm.target(f, instr)
			continue
		case op.BrTrue, op.BrFalse:
			cond := popAs[bool](vm, "bool")
			if cond == (instr.Op == op.BrTrue) {
				f.ip = vm.target(f, instr)
				continue
			}
		case op.Ret:
			results, done, err := vm.leave()
			if err != nil {
				return nil, err
			}
			if done {
				return results, nil
			}
			continue
		case op.Abort:
			code := popAs[uint64](vm, "u64 abort code")
			return nil, errz.NewAbort(code, vm.location(), vm.stackTrace())

		default:
			return nil, vm.errorf(errz.ErrRuntime, "invalid opcode %d", instr.Op)
		}
		f.ip++
	}
}

func (vm *VirtualMachine) slot(f *frame, instr bytecode.Instruction) int {
	slot := instr.Operands[0]
	if slot >= uint64(len(f.locals)) {
		panic(vm.errorf(errz.ErrRuntime, "local %d out of range", slot))
	}
	return int(slot)
}

func (vm *VirtualMachine) local(f *frame, instr bytecode.Instruction) Value {
	slot := vm.slot(f, instr)
	v := f.locals[slot]
	if v == nil {
		panic(vm.errorf(errz.ErrRuntime, "local %d holds no value", slot))
	}
	return v
}

func (vm *VirtualMachine) function(i uint64) int {
	if i >= uint64(len(vm.functions)) {
		panic(vm.errorf(errz.ErrRuntime, "function %d out of range", i))
	}
	return int(i)
}

func (vm *VirtualMachine) target(f *frame, instr bytecode.Instruction) int {
	t := instr.Operands[0]
	if t >= uint64(len(f.code.instructions)) {
		panic(vm.errorf(errz.ErrRuntime, "branch target %d out of range", t))
	}
	return int(t)
}
