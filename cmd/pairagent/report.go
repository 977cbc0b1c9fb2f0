package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pair-agent/internal/reporting"
)

func newReportCmd(e *env) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the performance report from the position store",
		Long: `report loads every stored position and writes PERFORMANCE.md and trades.csv
to the output directory. With in-memory storage the report is empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStores(ctx, e.cfg, e.log, false)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := reporting.NewGenerator(st.positions, st.performance, e.cfg.Scan.Leverage).Generate(ctx)
			if err != nil {
				return err
			}
			return writeReport(outputDir, report, e.log)
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "docs", "directory for PERFORMANCE.md and trades.csv")
	return cmd
}

func writeReport(dir string, report *reporting.Report, logger logrus.FieldLogger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := map[string]string{
		"PERFORMANCE.md": reporting.RenderMarkdown(report),
		"trades.csv":     reporting.RenderCSV(report.Trades),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"dir":       dir,
		"trades":    len(report.Trades),
		"open":      len(report.Open),
		"integrity": len(report.IntegrityErrors),
	}).Info("report written")
	return nil
}
