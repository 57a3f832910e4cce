package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/model"
)

var processCmd = &cobra.Command{
	Use:   "process [lead-id...]",
	Short: "Enrich, qualify, research, and assign workflows for leads",
	Long:  "Processes the given leads, or with --campaign/--status every matching lead, through enrichment, qualification, research, and workflow assignment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		campaign, _ := cmd.Flags().GetString("campaign")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		ids := args
		if len(ids) == 0 {
			leads, err := env.Store.ListLeads(ctx, model.LeadFilter{
				CampaignID: campaign,
				Status:     model.LeadStatus(status),
				Limit:      limit,
			})
			if err != nil {
				return eris.Wrap(err, "process: list leads")
			}
			for _, l := range leads {
				ids = append(ids, l.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(os.Stderr, "No leads to process.")
			return nil
		}

		results, err := env.Engine.ProcessBatch(ctx, ids, concurrency)
		if err != nil {
			return eris.Wrap(err, "process")
		}

		failed := 0
		for _, r := range results {
			if r.Failed() {
				failed++
			}
		}
		zap.L().Info("process complete",
			zap.Int("requested", len(ids)),
			zap.Int("processed", len(results)),
			zap.Int("with_failures", failed),
		)
		formatProcessResults(os.Stdout, results)
		return nil
	},
}

// formatProcessResults writes one row per lead with its phase outcomes.
func formatProcessResults(out io.Writer, results []*engine.ProcessResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEAD\tTIER\tSCORE\tEXECUTION\tPHASES")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t---------\t------")
	for _, r := range results {
		phases := make([]string, 0, len(r.Phases))
		for _, p := range r.Phases {
			phases = append(phases, p.Name+"="+string(p.Status))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\n",
			truncateID(r.LeadID),
			r.Tier,
			r.Score,
			truncateID(r.ExecutionID),
			strings.Join(phases, " "),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	processCmd.Flags().String("campaign", "", "only leads in this campaign")
	processCmd.Flags().String("status", "", "only leads with this status")
	processCmd.Flags().Int("limit", 100, "max leads to process when no ids are given")
	processCmd.Flags().Int("concurrency", 4, "leads processed in parallel")
	rootCmd.AddCommand(processCmd)
}
