package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify [lead-id]",
	Short: "Qualify a lead and save the result, or requalify every stale lead",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "qualify")
		if err != nil {
			return err
		}
		defer env.Close()

		stale, _ := cmd.Flags().GetBool("stale")
		campaign, _ := cmd.Flags().GetString("campaign")
		tier, _ := cmd.Flags().GetString("tier")
		clearOverride, _ := cmd.Flags().GetBool("clear-override")

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if stale {
			sum, err := env.Engine.RequalifyStale(ctx, campaign)
			if err != nil {
				return eris.Wrap(err, "requalify")
			}
			return enc.Encode(sum)
		}
		if len(args) == 0 {
			return eris.New("a lead id or --stale is required")
		}

		if clearOverride {
			l, err := env.Engine.ClearOverride(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "clear override")
			}
			return enc.Encode(l)
		}
		if tier != "" {
			t, err := model.ParseTier(tier)
			if err != nil {
				return err
			}
			l, err := env.Engine.Override(ctx, args[0], t)
			if err != nil {
				return eris.Wrap(err, "override")
			}
			return enc.Encode(l)
		}

		res, err := env.Engine.Qualify(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "qualify")
		}
		l, err := env.Store.GetLead(ctx, args[0])
		if err != nil {
			return err
		}
		printQualification(os.Stdout, l.DisplayName(), res)
		return nil
	},
}

func init() {
	qualifyCmd.Flags().Bool("stale", false, "requalify every lead whose qualification is stale")
	qualifyCmd.Flags().String("campaign", "", "limit --stale to one campaign")
	qualifyCmd.Flags().String("tier", "", "override the tier instead of computing it")
	qualifyCmd.Flags().Bool("clear-override", false, "drop an overridden tier and requalify")
	rootCmd.AddCommand(qualifyCmd)
}
