package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/qualify"
)

var scoreCmd = &cobra.Command{
	Use:   "score <lead-id>",
	Short: "Show a lead's score breakdown without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		l, err := env.Store.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "score")
		}
		res := env.Qualifier.Qualify(l, env.Engine.Orchestrator().Now())

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printQualification(os.Stdout, l.DisplayName(), res)
		return nil
	},
}

// printQualification writes a human-readable qualification breakdown.
func printQualification(out io.Writer, name string, r qualify.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Lead:\t%s (%s)\n", name, r.LeadID)
	_, _ = fmt.Fprintf(w, "Tier:\t%s (%s)\n", r.Tier, r.Decision.Context)
	_, _ = fmt.Fprintf(w, "Composite:\t%.1f (effective %.1f)\n", r.Score.Composite, r.EffectiveComposite)
	_, _ = fmt.Fprintf(w, "Engagement:\t%.1f\n", r.EngagementScore)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.2f\n", r.Confidence)
	_, _ = fmt.Fprintf(w, "Weights:\t%s (%s)\n", r.Score.ConfigVersion, r.Score.ConfigHash)

	names := make([]string, 0, len(r.Score.Components))
	for k := range r.Score.Components {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		_, _ = fmt.Fprintf(w, "  %s:\t%.1f\n", k, r.Score.Components[k])
	}
	if top, ok := r.TopMatch(); ok {
		_, _ = fmt.Fprintf(w, "Opportunity:\t%s (%.1f)\n", top.Type, top.Score)
	}
	for _, s := range r.QualificationReasons {
		_, _ = fmt.Fprintf(w, "  +\t%s\n", s)
	}
	for _, s := range r.DisqualificationReasons {
		_, _ = fmt.Fprintf(w, "  -\t%s\n", s)
	}
	for _, s := range r.RecommendedActions {
		_, _ = fmt.Fprintf(w, "Next:\t%s\n", s)
	}
	_, _ = fmt.Fprintf(w, "Review by:\t%s\n", r.NextReviewAt.Format("2006-01-02"))
	_ = w.Flush()
}

func init() {
	scoreCmd.Flags().String("format", "table", "output format: table or json")
	rootCmd.AddCommand(scoreCmd)
}
