package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/simon-1M/closurec/internal/table"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	italic  = color.New(color.Italic).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
)

// Print a table of the function's instructions to the given writer. Colours
// follow color.NoColor.
func Print(fn Function, writer io.Writer) {
	fmt.Fprintln(writer, bold(fn.Signature()))
	var lines [][]string
	for _, b := range fn.Blocks {
		for i, instr := range b.Instructions {
			var label string
			if i == 0 {
				label = italic(fmt.Sprintf("B%d", b.Label))
			}
			lines = append(lines, []string{
				label,
				fmt.Sprintf("%d", instr.Offset),
				bold(instr.Name),
				formatOperands(instr.Operands),
				colorize(instr),
			})
		}
	}
	table.NewTable(writer).
		WithHeader([]string{"BLOCK", "OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

func colorize(instr Instruction) string {
	switch instr.kind {
	case constAnnotation:
		return yellow(instr.Annotation)
	case funcAnnotation:
		return magenta(instr.Annotation)
	case localAnnotation:
		return cyan(instr.Annotation)
	case labelAnnotation:
		return green(instr.Annotation)
	case typeAnnotation:
		return bold(instr.Annotation)
	}
	return instr.Annotation
}

func formatOperands(ops []uint64) string {
	var sb strings.Builder
	for i, v := range ops {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", v))
	}
	return sb.String()
}
