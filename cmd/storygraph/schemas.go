package main

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"

	"github.com/spf13/cobra"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the available extraction schemas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := graph.LoadSchemaCatalog(cfg.Extract.SchemaFile)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, s := range catalog.List() {
			marker := " "
			if s.Name == cfg.Extract.DefaultSchema {
				marker = "*"
			}
			fmt.Fprintf(w, "%s %-14s %s\n", marker, s.Name, s.Description)
			switch s.Mode {
			case common.SchemaUnconstrained:
				fmt.Fprintln(w, "    any node or relationship type")
			case common.SchemaAuto:
				fmt.Fprintln(w, "    generated from the chapter text")
			default:
				fmt.Fprintf(w, "    elements:      %s\n", strings.Join(s.Elements, ", "))
				fmt.Fprintf(w, "    relationships: %s\n", strings.Join(s.Relationships, ", "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemasCmd)
}
