package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/config"
	"skillyhead-service/internal/export"
	"skillyhead-service/internal/logging"
)

// NewExportCmd writes assessment reports to an xlsx workbook, one sheet per assessment.
func NewExportCmd(configPath *string) *cobra.Command {
	var (
		assessments []string
		out         string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export assessment results to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(assessments) == 0 {
				return fmt.Errorf("at least one --assessment is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			lg, err := logging.Init(cfg.Log.Level, cfg.Log.Env, cfg.Log.File)
			if err != nil {
				return err
			}
			defer lg.Closer()

			ctx := cmd.Context()
			be, err := openBackend(ctx, cfg, lg.Base)
			if err != nil {
				return err
			}
			defer be.Close()
			core := app.New(be.repos, lg.Base)

			reports := make([]app.Report, 0, len(assessments))
			for _, id := range assessments {
				r, err := core.Submissions.AssessmentReport(ctx, systemIdentity, id)
				if err != nil {
					return fmt.Errorf("report %s: %w", id, err)
				}
				reports = append(reports, r)
			}
			wb, err := export.NewResultsWorkbook(reports...)
			if err != nil {
				return err
			}
			if err := wb.SaveAs(out); err != nil {
				return err
			}
			lg.Base.Info("results exported", zap.String("file", out), zap.Int("assessments", len(reports)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&assessments, "assessment", nil, "assessment id to export (repeatable)")
	cmd.Flags().StringVarP(&out, "out", "o", "results.xlsx", "output file")
	return cmd
}
