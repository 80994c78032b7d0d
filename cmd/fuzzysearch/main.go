// Package main provides the entry point for the fuzzysearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/fuzzysearch/cmd/fuzzysearch/cmd"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, apperrors.FormatForCLI(err))
		os.Exit(1)
	}
}
