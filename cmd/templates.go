package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/workflow"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List or validate workflow templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in templates and those in workflow.template_dir",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := workflow.BuiltinCatalog()
		if err != nil {
			return err
		}
		if cfg.Workflow.TemplateDir != "" {
			if err := cat.LoadDir(cfg.Workflow.TemplateDir); err != nil {
				return eris.Wrap(err, "load templates")
			}
		}
		formatTemplates(os.Stdout, cat.List())
		return nil
	},
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate every template file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := workflow.NewCatalog()
		if err := cat.LoadDir(args[0]); err != nil {
			return eris.Wrap(err, "validate templates")
		}
		fmt.Fprintf(os.Stdout, "%d templates OK\n", len(cat.List()))
		return nil
	},
}

// formatTemplates writes one row per template.
func formatTemplates(out io.Writer, ts []*workflow.Template) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tVERSION\tSTEPS\tNAME")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t-----\t----")
	for _, t := range ts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", t.ID, t.Type, t.Version, len(t.Steps), t.Name)
	}
	_ = w.Flush()
}

func init() {
	templatesCmd.AddCommand(templatesListCmd, templatesValidateCmd)
	rootCmd.AddCommand(templatesCmd)
}
