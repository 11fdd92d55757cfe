package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf)
	table.WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS"})
	table.WithColumnAlignment([]Alignment{AlignRight, AlignLeft, AlignLeft})
	table.WithHeaderAlignment([]Alignment{AlignCenter, AlignCenter, AlignRight})
	table.Append([]string{"0", "MoveLoc", "0"})
	table.Append([]string{"12", "CallClosure", "sig 1"})
	table.Render()

	expected := `
+--------+-------------+----------+
| OFFSET |   OPCODE    | OPERANDS |
+--------+-------------+----------+
|      0 | MoveLoc     | 0        |
|     12 | CallClosure | sig 1    |
+--------+-------------+----------+
`
	require.Equal(t, strings.TrimSpace(expected)+"\n", buf.String())
}

func TestColoredTable(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	var buf bytes.Buffer
	table := NewTable(&buf)
	table.WithHeader([]string{"BLOCK", "OFFSET", "OPCODE"})
	table.WithColumnAlignment([]Alignment{AlignLeft, AlignRight, AlignLeft})
	table.Append([]string{color.New(color.Bold).Sprint("B0"), "0", color.YellowString("CopyLoc")})
	table.Append([]string{"", color.CyanString("1"), color.YellowString("BrFalse")})
	table.Render()

	result := buf.String()
	require.Contains(t, result, "\x1b[")
	lines := strings.Split(strings.TrimSuffix(result, "\n"), "\n")
	require.Len(t, lines, 6)
	for i, line := range lines {
		require.Equal(t, len(lines[0]), len(stripAnsi(line)), "line %d", i)
	}
}

func TestWideRunes(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf).WithRows([][]string{{"日本", "x"}, {"ab", "yy"}}).Render()
	require.Equal(t, `+------+----+
| 日本 | x  |
| ab   | yy |
+------+----+
`, buf.String())
}
