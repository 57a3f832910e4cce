package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Advance every workflow execution that is due now",
	Long:  "Runs one scheduler pass: due executions send, wait, branch, and run actions. Use from cron when not running serve.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "tick")
		if err != nil {
			return err
		}
		defer env.Close()

		o := env.Engine.Orchestrator()
		sum, err := o.Tick(ctx, o.Now())
		if err != nil {
			return eris.Wrap(err, "tick")
		}

		zap.L().Info("tick complete",
			zap.Int("due", sum.Due),
			zap.Int("processed", sum.Processed),
			zap.Int("sent", sum.Sent),
			zap.Int("failures", sum.Failures),
		)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

func init() {
	rootCmd.AddCommand(tickCmd)
}
