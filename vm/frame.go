package vm

import (
	"github.com/simon-1M/closurec/bytecode"
)

// DefaultFrameLocals is the number of local slots stored directly in the
// frame, avoiding a heap allocation for small functions.
const DefaultFrameLocals = 8

type frame struct {
	fn   int
	code *loadedFunction
	ip   int
	// base is the operand stack height when the frame was entered.
	base    int
	storage [DefaultFrameLocals]Value
	locals  []Value
}

// activate prepares f to run fn with the given arguments in its leading
// slots.
//
// References into a frame's locals stay valid only while the frame is
// live, so a frame that allocated extended storage never reuses it.
func (f *frame) activate(fn int, code *loadedFunction, args []Value) {
	f.fn = fn
	f.code = code
	f.ip = 0
	if n := code.localsCount; n <= DefaultFrameLocals {
		f.storage = [DefaultFrameLocals]Value{}
		f.locals = f.storage[:n]
	} else {
		f.locals = make([]Value, n)
	}
	copy(f.locals, args)
}

func (f *frame) location(m *bytecode.Module) (string, int) {
	return m.Functions[f.fn].Name, f.ip
}
