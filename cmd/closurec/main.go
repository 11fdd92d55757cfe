package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "closurec",
		Short:         "Inspect, verify and run closure bytecode modules",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a closurec.toml file")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("log-level", "", "Override the configured log level")

	root.AddCommand(
		newDisCmd(),
		newVerifyCmd(),
		newRunCmd(),
		newExamplesCmd(),
	)
	return root
}
