package bytecode

import (
	"sort"

	"github.com/simon-1M/closurec/op"
)

// Leaders returns the sorted offsets that start a basic block: the entry,
// every in-range branch target and every instruction that follows a
// control transfer.
func Leaders(code []Instruction) []int {
	if len(code) == 0 {
		return nil
	}
	seen := map[int]bool{0: true}
	for pc, instr := range code {
		info := op.GetInfo(instr.Op)
		if info.IsBranch() && instr.Operands[0] < uint64(len(code)) {
			seen[int(instr.Operands[0])] = true
		}
		if info.IsTerminator() && pc+1 < len(code) {
			seen[pc+1] = true
		}
	}
	leaders := make([]int, 0, len(seen))
	for pc := range seen {
		leaders = append(leaders, pc)
	}
	sort.Ints(leaders)
	return leaders
}
