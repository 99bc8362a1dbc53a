package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/ai/tracker"
	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/db"
	"github.com/teranos/shopper/display"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
)

// UsageCmd reports tracked model usage and cost
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show model usage and cost",
	Long: `Show requests, tokens and cost recorded in the usage database, broken
down by model and by stage.

Examples:
  shopper usage
  shopper usage --since 168h`,
	RunE: runUsage,
}

func init() {
	UsageCmd.Flags().Duration("since", 24*time.Hour, "How far back to report")
	UsageCmd.Flags().Bool("json", false, "Output as JSON")
}

type usageReport struct {
	Since  time.Time                `json:"since"`
	Stats  *tracker.UsageStats      `json:"stats"`
	Models []tracker.ModelBreakdown `json:"models"`
	Stages []tracker.StageBreakdown `json:"stages"`
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	window, _ := cmd.Flags().GetDuration("since")
	since := time.Now().Add(-window)

	conn, err := db.OpenWithMigrations(cfg.GetDatabasePath(), logger.ComponentLogger("db"))
	if err != nil {
		return err
	}
	defer conn.Close()

	t := tracker.NewUsageTracker(conn)
	stats, err := t.GetUsageStats(ctx, since)
	if err != nil {
		return err
	}
	models, err := t.GetModelBreakdown(ctx, since)
	if err != nil {
		return err
	}
	stages, err := t.GetStageBreakdown(ctx, since)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(usageReport{Since: since, Stats: stats, Models: models, Stages: stages})
	}

	pterm.DefaultSection.Printf("Usage since %s\n", since.Format(time.RFC3339))
	pterm.Printf("Requests: %d (%.1f%% successful) across %d runs\n", stats.TotalRequests, stats.SuccessRate*100, stats.Runs)
	pterm.Printf("Tokens:   %d prompt + %d completion = %d\n", stats.PromptTokens, stats.CompletionTokens, stats.TotalTokens)
	pterm.Printf("Cost:     %s\n", pterm.Green(fmt.Sprintf("$%.4f", stats.TotalCost)))

	if len(models) > 0 {
		data := pterm.TableData{{"Model", "Provider", "Requests", "Tokens", "Cost"}}
		for _, m := range models {
			data = append(data, []string{
				m.ModelName, m.ModelProvider,
				fmt.Sprint(m.RequestCount), fmt.Sprint(m.TotalTokens), fmt.Sprintf("$%.4f", m.TotalCost),
			})
		}
		pterm.Println()
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}

	if len(stages) > 0 {
		data := pterm.TableData{{"Stage", "Requests", "Failed", "Cost"}}
		for _, s := range stages {
			data = append(data, []string{
				s.Stage, fmt.Sprint(s.RequestCount), fmt.Sprint(s.FailedCount), fmt.Sprintf("$%.4f", s.TotalCost),
			})
		}
		pterm.Println()
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	return nil
}
