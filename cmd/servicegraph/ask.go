package servicegraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question about the service history",
	Long: `Answer a question using one of two strategies:

  cypher  translate the question to Cypher, run it and summarise the rows
  vector  find the closest known problems and ask for a diagnosis`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askStrategy    string
	askShowContext bool
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askStrategy, "strategy", "s", "", "cypher or vector (default from config)")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the generated Cypher and retrieved context")
}

func runAsk(cmd *cobra.Command, args []string) error {
	name := cfg.Query.Strategy
	if askStrategy != "" {
		name = askStrategy
	}
	strategy, err := qa.ParseStrategy(name)
	if err != nil {
		return err
	}

	ctx := context.WithValue(cmd.Context(), types.ContextKeyRequestID, uuid.New().String())
	ctx = context.WithValue(ctx, types.ContextKeySource, "cli")

	client, err := openClient(ctx, false)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	answer := client.Ask(ctx, strategy, strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if askShowContext {
		if answer.Cypher != "" {
			fmt.Fprintf(out, "Cypher:\n%s\n\n", answer.Cypher)
		}
		if answer.Context != "" {
			fmt.Fprintf(out, "Context:\n%s\n\n", answer.Context)
		}
	}
	fmt.Fprintln(out, answer.Message())

	if answer.Err != nil && !types.IsKind(answer.Err, types.KindNoMatch) {
		return answer.Err
	}
	return nil
}
