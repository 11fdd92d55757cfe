package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/simon-1M/closurec/bytecode"
)

var (
	red   = color.New(color.FgRed).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
)

// readModule decodes the binary module stored at path.
func readModule(path string) (*bytecode.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := bytecode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
