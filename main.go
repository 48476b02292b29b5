package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ego-devkit/ego/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the ego command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		if !errors.Is(executionError, cli.ErrReportedFailure) {
			fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		}
		os.Exit(1)
	}
}
