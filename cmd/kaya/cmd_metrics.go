package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"kaya/internal/metrics"
)

var (
	metricsWindowHours int
	metricsDays        int
	metricsMetric      string
	metricsDimension   string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Read-only queries against the Metrics Aggregator (§4.12)",
}

func init() {
	for _, c := range []*cobra.Command{
		metricsSummaryCmd, metricsAgentUtilCmd, metricsCostPerFeatureCmd,
		metricsRejectionRateCmd, metricsValidationRateCmd, metricsRetryCountCmd,
		metricsModelUsageCmd,
	} {
		c.Flags().IntVar(&metricsWindowHours, "window", metrics.DefaultWindowHours, "window size in hours")
	}
	metricsTrendCmd.Flags().IntVar(&metricsDays, "days", 7, "number of days in the trend series")
	metricsTrendCmd.Flags().StringVar(&metricsMetric, "metric", metrics.MetricCostPerFeature, "metric name")
	metricsTrendCmd.Flags().StringVar(&metricsDimension, "dimension", metrics.DimensionGlobal, "metric dimension (feature/agent/model id, or global)")

	metricsCmd.AddCommand(
		metricsSummaryCmd, metricsAgentUtilCmd, metricsCostPerFeatureCmd,
		metricsRejectionRateCmd, metricsValidationRateCmd, metricsRetryCountCmd,
		metricsModelUsageCmd, metricsTrendCmd,
	)
}

func emitJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var metricsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the global critic-rejection and validation-pass rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := kayaApp.metrics
		return emitJSON(map[string]interface{}{
			"window_hours":         metricsWindowHours,
			"critic_rejection_rate": rec.CriticRejectionRate(metricsWindowHours),
			"validation_pass_rate":  rec.ValidationPassRate(metricsWindowHours),
			"events_dropped":        kayaApp.bus.DroppedCount(),
		})
	},
}

var metricsAgentUtilCmd = &cobra.Command{
	Use:   "agent-utilization <agent>",
	Short: "Fraction of the window an agent spent running (§4.12)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitJSON(map[string]interface{}{"agent": args[0], "utilization": kayaApp.metrics.AgentUtilization(args[0], metricsWindowHours)})
	},
}

var metricsCostPerFeatureCmd = &cobra.Command{
	Use:   "cost-per-feature <feature>",
	Short: "Mean cost per completed feature (§4.12)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitJSON(map[string]interface{}{"feature": args[0], "cost_usd": kayaApp.metrics.CostPerFeature(args[0], metricsWindowHours)})
	},
}

var metricsRejectionRateCmd = &cobra.Command{
	Use:   "rejection-rate",
	Short: "Critic rejection rate over the window (§4.12)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitJSON(map[string]interface{}{"rejection_rate": kayaApp.metrics.CriticRejectionRate(metricsWindowHours)})
	},
}

var metricsValidationRateCmd = &cobra.Command{
	Use:   "validation-rate",
	Short: "Gemini validation pass rate over the window (§4.12)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitJSON(map[string]interface{}{"validation_pass_rate": kayaApp.metrics.ValidationPassRate(metricsWindowHours)})
	},
}

var metricsRetryCountCmd = &cobra.Command{
	Use:   "retry-count <feature>",
	Short: "Mean retry count per completed feature (§4.12)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitJSON(map[string]interface{}{"feature": args[0], "avg_retries": kayaApp.metrics.AverageRetryCount(args[0], metricsWindowHours)})
	},
}

var metricsModelUsageCmd = &cobra.Command{
	Use:   "model-usage <model_id>",
	Short: "Aggregated duration/cost/call-count for one model (§4.12)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitJSON(kayaApp.metrics.ModelUsage(args[0], metricsWindowHours))
	},
}

func countAgg(tuples []string) float64 {
	return float64(len(tuples))
}

var metricsTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Historical daily series for a metric/dimension (§4.12)",
	Long: `Prints one data point per day over --days days for --metric/--dimension,
aggregating each day's tuples with a simple count (the Metrics Aggregator
stores each dimension's own tuple encoding, so a generic trend command
counts events per day rather than trying to interpret every metric's
tuple format identically).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		points := kayaApp.metrics.Trend(metricsMetric, metricsDimension, metricsDays, countAgg)
		return emitJSON(points)
	},
}
