package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dipwatch/dipwatch/internal/alerts"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one alert and sector cycle, then print sector states",
		Long: `Runs a single evaluation pass against the configured universe and
prints the resulting sector records and suggestion bundles as JSON.
Useful for smoke-testing a universe file without the scheduler.`,
		RunE: runScan,
	}
	cmd.Flags().String("universe", "universe.yaml", "Path to sector universe file")
	cmd.Flags().String("demo-symbol", "", "Add a throwaway DIP_GT rule for this symbol")
	cmd.Flags().Float64("demo-threshold", 8.0, "Threshold for the throwaway rule")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfgPath, _ := cmd.Flags().GetString("config")
	universePath, _ := cmd.Flags().GetString("universe")
	logLevel, _ := cmd.Flags().GetString("log-level")
	demoSymbol, _ := cmd.Flags().GetString("demo-symbol")
	demoThreshold, _ := cmd.Flags().GetFloat64("demo-threshold")

	var extra []alerts.Rule
	if demoSymbol != "" {
		extra = append(extra, alerts.Rule{
			ID:        uuid.New().String(),
			UserID:    "scan",
			Symbol:    demoSymbol,
			Condition: alerts.CondDipGT,
			Threshold: demoThreshold,
			Priority:  alerts.PriorityMedium,
			Enabled:   true,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		})
	}

	a, err := buildApp(ctx, cfgPath, universePath, logLevel, extra)
	if err != nil {
		return err
	}

	if err := a.pipeline.AlertCycle(ctx); err != nil {
		return err
	}
	if err := a.pipeline.SectorCycle(ctx); err != nil {
		return err
	}

	type sectorReport struct {
		SectorID string      `json:"sector_id"`
		State    string      `json:"state"`
		Bundles  interface{} `json:"bundles,omitempty"`
	}

	reports := make([]sectorReport, 0, len(a.universe.Sectors))
	for _, s := range a.universe.Sectors {
		report := sectorReport{
			SectorID: s.ID,
			State:    string(a.sectors.CurrentState(s.ID)),
		}
		if bundles := a.emitter.History(s.ID); len(bundles) > 0 {
			report.Bundles = bundles
		}
		reports = append(reports, report)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return err
	}

	log.Info().Int("sectors", len(reports)).Msg("Scan complete")
	return nil
}
