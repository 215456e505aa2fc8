package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cwbudde/gradascent/internal/objective"
	"github.com/spf13/cobra"
)

var objectivesCmd = &cobra.Command{
	Use:   "objectives",
	Short: "List the registered objectives",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDIM\tDESCRIPTION")
		for _, name := range objective.Names() {
			spec, err := objective.Lookup(name)
			if err != nil {
				return err
			}
			dim := "any"
			if spec.Dim != 0 {
				dim = fmt.Sprint(spec.Dim)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, dim, spec.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(objectivesCmd)
}
