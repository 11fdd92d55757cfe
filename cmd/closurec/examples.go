package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/simon-1M/closurec"
	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/internal/fixtures"
	"github.com/spf13/cobra"
)

// Extension is appended to the files written by the examples command.
const Extension = ".cbc"

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples [dir]",
		Short: "Compile the built-in example modules into dir",
		Args:  cobra.MaximumNArgs(1),
		RunE:  examplesHandler,
	}
}

func exampleModules() []*ast.Module {
	return []*ast.Module{
		fixtures.MyListModule(),
		fixtures.CaptureModule(),
		fixtures.NestedModule(),
		fixtures.LoopModule(),
		fixtures.BorrowModule(),
		fixtures.TupleModule(),
	}
}

// exampleFile returns the file name for m, such as "0x42_test.cbc".
func exampleFile(m *ast.Module) string {
	return strings.ReplaceAll(m.QualifiedName(), "::", "_") + Extension
}

func examplesHandler(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	mods := exampleModules()
	results, err := closurec.CompileAll(cmd.Context(), mods, current.cfg.Options(current.logger)...)
	for i, r := range results {
		if r == nil {
			continue
		}
		path := filepath.Join(dir, exampleFile(mods[i]))
		if err := os.WriteFile(path, r.Binary, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", path, len(r.Binary))
	}
	return err
}
