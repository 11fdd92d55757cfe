package main

import (
	"fmt"

	"github.com/simon-1M/closurec/dis"
	"github.com/spf13/cobra"
)

func newDisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis <file>",
		Short: "Disassemble a binary module",
		Args:  cobra.ExactArgs(1),
		RunE:  disHandler,
	}
	cmd.Flags().Bool("table", false, "Print each function as a table")
	cmd.Flags().String("func", "", "Function to disassemble, printed as a table")
	return cmd
}

func disHandler(cmd *cobra.Command, args []string) error {
	m, err := readModule(args[0])
	if err != nil {
		return err
	}
	table, _ := cmd.Flags().GetBool("table")
	funcName, _ := cmd.Flags().GetString("func")
	out := cmd.OutOrStdout()

	if !table && funcName == "" {
		return dis.Write(out, m)
	}

	// If a function name was provided, disassemble that function only
	var fns []dis.Function
	if funcName != "" {
		i := m.FunctionIndex(funcName)
		if i < 0 {
			return fmt.Errorf("function %q not found", funcName)
		}
		fn, err := dis.DisassembleFunction(m, i)
		if err != nil {
			return err
		}
		fns = []dis.Function{fn}
	} else if fns, err = dis.Disassemble(m); err != nil {
		return err
	}
	for i, fn := range fns {
		if i > 0 {
			fmt.Fprintln(out)
		}
		dis.Print(fn, out)
	}
	return nil
}
