// Package bytecode defines the binary module format produced by codegen and
// consumed by the disassembler, the verifier and the vm.
//
// # Layout
//
// A binary module starts with a fixed header followed by a CBOR body:
//
//	magic   4 bytes   A1 1C EB 0B
//	version 4 bytes   little-endian uint32, MinVersion..MaxVersion
//	body    CBOR      canonical encoding of [Module]
//
// The body holds the module's tables:
//
//   - [Struct]: struct definitions with declared abilities and ordered
//     field layout
//   - [Signature]: parameter and result types shared by functions and
//     closure types
//   - [Function]: name, visibility, signature index, slot types and the
//     instruction stream
//   - [Constant]: values that cannot be inlined as immediates
//
// Pools are interned, so equal signatures and constants share one index.
//
// # Instruction streams
//
// Each function's code is a byte stream of instructions. An instruction is
// one opcode byte followed by its operands, each an unsigned varint. The
// number and meaning of operands is given by [op.GetInfo]. Branch offsets
// are instruction indices within the same function, not byte offsets.
//
//	code := bytecode.EncodeCode([]bytecode.Instruction{
//	    {Op: op.CopyLoc, Operands: []uint64{0}},
//	    {Op: op.Ret},
//	})
//	instrs, err := bytecode.DecodeCode(code)
//
// # Determinism
//
// Encoding is byte-stable: pools are ordered by first use, maps are never
// iterated, and CBOR canonical mode sorts keys. Encoding the result of
// [Decode] reproduces the input bytes exactly.
package bytecode
