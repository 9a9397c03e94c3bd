package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers and their models",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	_, cfg, cleanup, err := setup(true)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := provider.Initialize(cmd.Context(), cfg)
	providers := registry.List()
	if len(providers) == 0 {
		fmt.Println("No providers configured. Set an API key in tandem.json or the environment.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tNAME\tCONTEXT\tTOOLS")
	for _, p := range providers {
		for _, m := range p.Models() {
			tools := ""
			if m.SupportsTools {
				tools = "yes"
			}
			fmt.Fprintf(w, "%s/%s\t%s\t%d\t%s\n", p.ID(), m.ID, m.Name, m.ContextLength, tools)
		}
	}
	return w.Flush()
}
