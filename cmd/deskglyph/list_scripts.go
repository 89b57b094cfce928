package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/scripts"
)

var listScriptsCmd = &cobra.Command{
	Use:   "list-scripts",
	Short: "List widget scripts in resolution order",
	Long: `List every widget script found in scripts.dirs. A script shadowed by one
with the same name in an earlier directory is marked and never used.`,
	Args: cobra.NoArgs,
	RunE: runListScripts,
}

func runListScripts(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := scripts.Index(cmd.Context(), cfg.Scripts.Dirs, zap.NewNop())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(catalog.Scripts()) == 0 {
		fmt.Fprintf(out, "no scripts found in %v\n", catalog.Dirs())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tSTATUS")
	for _, s := range catalog.Scripts() {
		status := "active"
		if s.Shadowed {
			status = "shadowed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Path, status)
	}
	return w.Flush()
}
