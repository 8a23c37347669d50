package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/pkg/types"
)

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "Print the supported languages",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printLanguages(cmd.OutOrStdout(), types.Languages)
		},
	}
}

func printLanguages(w io.Writer, langs []types.Language) {
	for _, l := range langs {
		fmt.Fprintf(w, "%s  %-3s %-12s %s\n", l.Flag, l.Code, l.Name, l.NativeName)
	}
}
