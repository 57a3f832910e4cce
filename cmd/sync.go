package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push opportunities to Salesforce",
	Long:  "Creates Salesforce opportunities for local ones that have never been synced and updates the stage of those that have.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		sum, err := env.Engine.SyncOpportunities(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "sync")
		}
		return json.NewEncoder(os.Stdout).Encode(sum)
	},
}

func init() {
	syncCmd.Flags().Int("limit", 200, "max opportunities to push")
	rootCmd.AddCommand(syncCmd)
}
