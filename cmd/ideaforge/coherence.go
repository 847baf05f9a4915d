package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"ideaforge/internal/coherence"
)

var coherenceInput string

var coherenceCmd = &cobra.Command{
	Use:   "coherence",
	Short: "Compute the weighted coherence score",
	Long: `Scores Flow, Body, Finance, LongTerm, Externalization and Overload values
(0 to 1) read from a JSON object and prints the result as JSON. Without
--input the built-in sample values are scored.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		values := coherence.Sample()
		if coherenceInput != "" {
			loaded, err := coherence.LoadFile(coherenceInput)
			if err != nil {
				return err
			}
			values = loaded
		} else {
			cmd.PrintErrln("No input file given, using default sample values.")
		}
		out, err := json.MarshalIndent(coherence.Evaluate(values), "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	},
}

func init() {
	coherenceCmd.Flags().StringVarP(&coherenceInput, "input", "i", "", "JSON file with dimension values")
	rootCmd.AddCommand(coherenceCmd)
}
