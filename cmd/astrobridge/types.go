package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/astrobridge/internal/process"
)

// createTypesCommand creates the types subcommand, which prints the
// process type catalog with its conflict relation.
func createTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List process types and their conflicts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tDEVICE\tACTION\tMULTIPLE\tCONFLICTS")
			for _, t := range process.Types() {
				conflicts := t.Conflicts()
				names := make([]string, 0, len(conflicts))
				for _, c := range conflicts {
					names = append(names, c.Name())
				}
				list := strings.Join(names, ",")
				if list == "" {
					list = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.Name(), t.Device(), t.Action(), t.AllowMultiple(), list)
			}
			return w.Flush()
		},
	}
}
