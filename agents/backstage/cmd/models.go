package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"backstage/internal/models"
	"backstage/shared/ai"

	"github.com/spf13/cobra"
)

func newModelsCommand(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported models and which ones have a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), deps.cfg, deps.log)
			if err != nil {
				return err
			}
			defer a.Close()
			return runModels(a.settings.Snapshot(), cmd.OutOrStdout())
		},
	}
}

func runModels(s models.Settings, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tNAME\tKEY\tSELECTED")
	fmt.Fprintln(w, "--------\t-----\t----\t---\t--------")

	for _, pm := range ai.ModelTable() {
		key := "no"
		if s.APIKeys.Get(pm.Provider) != "" {
			key = "yes"
		}
		for _, m := range pm.Models {
			selected := ""
			if m.ID == s.SelectedModel {
				selected = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", pm.Provider, m.ID, m.Name, key, selected)
		}
	}
	return w.Flush()
}
