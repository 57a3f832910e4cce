package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List active alerts, most severe first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "alerts")
		if err != nil {
			return err
		}
		defer env.Close()

		campaign, _ := cmd.Flags().GetString("campaign")
		limit, _ := cmd.Flags().GetInt("limit")
		ack, _ := cmd.Flags().GetString("ack")

		if ack != "" {
			if err := env.Alerter.Acknowledge(ctx, ack); err != nil {
				return eris.Wrap(err, "acknowledge alert")
			}
			fmt.Fprintf(os.Stderr, "Acknowledged %s.\n", ack)
			return nil
		}

		alerts, err := env.Alerter.Active(ctx, model.AlertFilter{CampaignID: campaign, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "list alerts")
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No active alerts.")
			return nil
		}
		formatAlerts(os.Stdout, alerts)
		return nil
	},
}

// formatAlerts writes a tabular list of alerts to out.
func formatAlerts(out io.Writer, alerts []*model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSEVERITY\tTYPE\tLEAD\tCREATED\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t----\t-------\t-----")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(a.ID),
			a.Severity,
			a.Type,
			truncateID(a.LeadID),
			a.CreatedAt.Format("2006-01-02 15:04"),
			a.Title,
		)
	}
	_ = w.Flush()
}

func init() {
	alertsCmd.Flags().String("campaign", "", "only alerts for this campaign")
	alertsCmd.Flags().Int("limit", 50, "max alerts to list")
	alertsCmd.Flags().String("ack", "", "acknowledge the alert with this id")
	rootCmd.AddCommand(alertsCmd)
}
