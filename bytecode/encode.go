package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/simon-1M/closurec/op"
)

const (
	// MinVersion is the oldest binary format version this package reads.
	MinVersion uint32 = 6
	// MaxVersion is the newest binary format version this package reads.
	MaxVersion uint32 = 8
	// DefaultVersion is written when a module does not ask for another one.
	DefaultVersion = MaxVersion
	// ClosureVersion is the first version with closure instructions.
	ClosureVersion uint32 = 8
)

// Magic starts every binary module.
var Magic = []byte{0xA1, 0x1C, 0xEB, 0x0B}

const headerSize = 8

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Encode serializes m. A zero Version is written as DefaultVersion.
func Encode(m *Module) ([]byte, error) {
	version := m.Version
	if version == 0 {
		version = DefaultVersion
	}
	if err := checkVersion(m, version); err != nil {
		return nil, err
	}
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal module: %w", err)
	}
	out := make([]byte, 0, headerSize+len(body))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, version)
	return append(out, body...), nil
}

// Decode parses a binary module. It is the exact inverse of Encode.
func Decode(data []byte) (*Module, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("bytecode: module too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, fmt.Errorf("bytecode: bad magic %x", data[:len(Magic)])
	}
	version := binary.LittleEndian.Uint32(data[len(Magic):headerSize])
	var m Module
	if err := cbor.Unmarshal(data[headerSize:], &m); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal module: %w", err)
	}
	m.Version = version
	if err := checkVersion(&m, version); err != nil {
		return nil, err
	}
	return &m, nil
}

// checkVersion rejects unsupported versions, undecodable code and closure
// instructions in formats that predate them.
func checkVersion(m *Module, version uint32) error {
	if version < MinVersion || version > MaxVersion {
		return fmt.Errorf("bytecode: unsupported format version %d (want %d..%d)",
			version, MinVersion, MaxVersion)
	}
	for i, fn := range m.Functions {
		instrs, err := m.Instructions(i)
		if err != nil {
			return fmt.Errorf("bytecode: %w", err)
		}
		if version >= ClosureVersion {
			continue
		}
		for _, instr := range instrs {
			if instr.Op == op.PackClosure || instr.Op == op.CallClosure {
				return fmt.Errorf("bytecode: function %s uses %s, which requires format version %d",
					fn.Name, instr.Op, ClosureVersion)
			}
		}
	}
	return nil
}
