package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/intake"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a spreadsheet, CSV, or the Notion lead queue",
	Long:  "Reads leads from --file (xlsx or csv) or, with --notion, from queued pages in the Notion lead database. Leads already stored are left untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		fromNotion, _ := cmd.Flags().GetBool("notion")
		sheet, _ := cmd.Flags().GetString("sheet")
		campaign, _ := cmd.Flags().GetString("campaign")

		if (file == "") == !fromNotion {
			return eris.New("exactly one of --file or --notion is required")
		}

		mode := "tick"
		if fromNotion {
			mode = "import"
		}
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		if campaign != "" {
			if _, err := env.Store.GetCampaign(ctx, campaign); err != nil {
				return eris.Wrap(err, "import")
			}
		}

		im := intake.NewImporter(env.Store)
		var sum intake.Summary
		if fromNotion {
			sum, err = im.ImportNotion(ctx, env.Notion, cfg.Notion.LeadDB, campaign)
		} else {
			sum, err = im.ImportFile(ctx, file, intake.SheetOptions{SheetName: sheet}, campaign)
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int("read", sum.Read),
			zap.Int("inserted", sum.Inserted),
			zap.Int("existing", sum.Existing),
			zap.Int("invalid", sum.Invalid),
		)
		return json.NewEncoder(os.Stdout).Encode(sum)
	},
}

func init() {
	importCmd.Flags().String("file", "", "path to an .xlsx or .csv file")
	importCmd.Flags().Bool("notion", false, "import queued pages from the Notion lead database")
	importCmd.Flags().String("sheet", "", "worksheet name for xlsx files (default first sheet)")
	importCmd.Flags().String("campaign", "", "campaign id to assign imported leads to")
	rootCmd.AddCommand(importCmd)
}
