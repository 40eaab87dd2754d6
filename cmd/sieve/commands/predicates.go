package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teenjuna/sieve/predicate"
)

var descriptions = map[string]string{
	"any":      "every item",
	"even":     "items divisible by 2",
	"negative": "items below zero",
	"odd":      "items not divisible by 2",
	"positive": "items above zero",
	"prime":    "prime numbers",
	"zero":     "zero",
}

func newPredicatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "predicates",
		Short: "List the predicates consumers can use",
		Long: `List the predicates consumers can use.

Prefix a name with "not-" to invert it, e.g. "not-prime".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range predicate.Names() {
				if _, err := fmt.Fprintf(out, "%-10s %s\n", name, descriptions[name]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
