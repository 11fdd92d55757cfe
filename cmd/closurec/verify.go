package main

import (
	"fmt"

	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/verifier"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>...",
		Short: "Verify binary modules",
		Args:  cobra.MinimumNArgs(1),
		RunE:  verifyHandler,
	}
}

func verifyHandler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		m, err := readModule(path)
		if err != nil {
			return err
		}
		if err := verifier.Verify(m); err != nil {
			failed++
			for _, e := range errors.List(err) {
				fmt.Fprintf(out, "%s: %s\n", path, red(e.Error()))
			}
			current.logger.Debug().Str("module", m.QualifiedName()).Strs("codes", codeStrings(err)).Msg("rejected")
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", path, green("bytecode verification succeeded"))
	}
	if failed > 0 {
		return fmt.Errorf("verification failed for %d of %d modules", failed, len(args))
	}
	return nil
}

func codeStrings(err error) []string {
	var out []string
	for _, c := range errors.Codes(err) {
		out = append(out, string(c))
	}
	return out
}
