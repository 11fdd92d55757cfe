package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/errz"
	"github.com/simon-1M/closurec/types"
	"github.com/simon-1M/closurec/verifier"
	"github.com/simon-1M/closurec/vm"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file> <function> [args...]",
		Short: "Run a function of a binary module",
		Long: "Run a function of a binary module. Arguments are parsed according to the\n" +
			"function's parameter types: u8, u64, bool or address.",
		Args: cobra.MinimumNArgs(2),
		RunE: runHandler,
	}
	cmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	return cmd
}

func runHandler(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := readModule(args[0])
	if err != nil {
		return err
	}
	if current.cfg.Verify {
		if err := verifier.Verify(m); err != nil {
			return err
		}
	}
	values, err := parseArgs(m, args[1], args[2:])
	if err != nil {
		return err
	}
	results, err := call(ctx, m, args[1], values)
	if err != nil {
		var se *errz.StructuredError
		if errors.As(err, &se) {
			fmt.Fprint(current.stderr, red(se.FriendlyErrorMessage()))
		}
		return err
	}
	format, _ := cmd.Flags().GetString("output")
	output, err := formatResults(results, format)
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), output)
	}
	return nil
}

func call(ctx context.Context, m *bytecode.Module, name string, args []vm.Value) ([]vm.Value, error) {
	return vm.Run(ctx, m, name, args, vm.WithLogger(current.logger))
}

// parseArgs converts command line arguments to the parameter types of the
// named function.
func parseArgs(m *bytecode.Module, name string, args []string) ([]vm.Value, error) {
	i := m.FunctionIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("function %q not found in %s", name, m.QualifiedName())
	}
	sig, err := m.FunctionSignature(i)
	if err != nil {
		return nil, err
	}
	params, err := m.TypesOf(sig.Params)
	if err != nil {
		return nil, err
	}
	if len(args) != len(params) {
		return nil, fmt.Errorf("function %q takes %d arguments (%d given)", name, len(params), len(args))
	}
	values := make([]vm.Value, len(args))
	for j, arg := range args {
		v, err := parseArg(arg, params[j])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", j, err)
		}
		values[j] = v
	}
	return values, nil
}

func parseArg(arg string, t types.Type) (vm.Value, error) {
	switch t {
	case types.U8:
		v, err := strconv.ParseUint(arg, 0, 8)
		return uint8(v), err
	case types.U64:
		return strconv.ParseUint(arg, 0, 64)
	case types.Bool:
		return strconv.ParseBool(arg)
	case types.Address:
		return vm.Address(arg), nil
	}
	return nil, fmt.Errorf("parameters of type %s cannot be given on the command line", t)
}

func formatResults(results []vm.Value, format string) (string, error) {
	switch format {
	case "", "text":
		var s string
		for i, r := range results {
			if i > 0 {
				s += "\n"
			}
			s += vm.Format(r)
		}
		return s, nil
	case "json":
		var (
			data []byte
			err  error
		)
		if color.NoColor {
			data, err = json.MarshalIndent(results, "", "  ")
		} else {
			data, err = prettyjson.Marshal(results)
		}
		return string(data), err
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}
