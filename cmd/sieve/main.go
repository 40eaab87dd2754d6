// Package main is the entry point for the sieve CLI.
//
// Usage:
//
//	sieve [flags] <command> [args]
//
// Commands:
//
//	run        - Feed a file of integers through the buffer to the consumers
//	history    - List the runs recorded in the journal
//	predicates - List the predicates consumers can use
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/teenjuna/sieve/cmd/sieve/commands"
)

func main() {
	if err := commands.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
