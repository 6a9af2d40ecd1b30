package servicegraph

import (
	"fmt"

	"github.com/soundprediction/go-servicegraph/pkg/cost"
	"github.com/soundprediction/go-servicegraph/pkg/telemetry"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print graph counts, token usage and recent errors",
	RunE:  runStats,
}

var statsErrors int

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsErrors, "errors", 10, "number of recent errors to print")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := openClient(ctx, cfg.Database.Driver == "memory")
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(out, stats)

	if telemetryDB == nil {
		return nil
	}

	usage, err := client.TokenUsage(ctx)
	if err != nil {
		return err
	}
	if len(usage) > 0 {
		calc := cost.NewCalculator()
		fmt.Fprintf(out, "\nToken usage:\n")
		for _, u := range usage {
			fmt.Fprintf(out, "  %-24s calls: %-6d prompt: %-8d completion: %-8d total: %-8d est. $%.4f\n",
				u.Model, u.Calls, u.PromptTokens, u.CompletionTokens, u.TotalTokens,
				calc.Estimate(u.Model, u.PromptTokens, u.CompletionTokens))
		}
	}

	if statsErrors > 0 && errorSink != nil {
		recent, err := telemetry.RecentErrors(ctx, telemetryDB, statsErrors)
		if err != nil {
			return err
		}
		if len(recent) > 0 {
			fmt.Fprintf(out, "\nRecent errors:\n")
			for _, e := range recent {
				fmt.Fprintf(out, "  [%s] %s (run %s, kind %s)\n", e.Level, e.Message, e.RunID, e.ErrorKind)
			}
		}
	}
	return nil
}
