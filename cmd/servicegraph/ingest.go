package servicegraph

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/linker"
	"github.com/soundprediction/go-servicegraph/pkg/loader"
	"github.com/soundprediction/go-servicegraph/pkg/relational"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a service history CSV into the graph and link similar values",
	Long: `Load a service history CSV export into the knowledge graph.

The pipeline renames the columns and writes the renamed copy, optionally
round-trips the rows through the relational staging store, wipes the graph,
writes one transaction per row (failed rows are logged and skipped), then
embeds problems, causes and corrective actions and links each value to its
nearest neighbours with SIMILAR_TO.`,
	RunE: runIngest,
}

var (
	ingestCSV       string
	ingestRenamed   string
	ingestDryRun    bool
	ingestNoWipe    bool
	ingestNoLink    bool
	ingestSymmetric bool
	ingestRoundtrip bool
	ingestSample    int
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestCSV, "csv", "", "service history CSV (default from config)")
	ingestCmd.Flags().StringVar(&ingestRenamed, "renamed-csv", "", "where to write the renamed copy (default from config)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "build the graph in memory instead of Neo4j")
	ingestCmd.Flags().BoolVar(&ingestNoWipe, "no-wipe", false, "keep existing graph contents")
	ingestCmd.Flags().BoolVar(&ingestNoLink, "no-link", false, "skip embedding and similarity linking")
	ingestCmd.Flags().BoolVar(&ingestSymmetric, "symmetric", false, "write SIMILAR_TO in both directions")
	ingestCmd.Flags().BoolVar(&ingestRoundtrip, "roundtrip", false, "stage rows through the relational store before writing")
	ingestCmd.Flags().IntVar(&ingestSample, "sample", 5, "number of sample Problem nodes to print")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("csv") {
		cfg.Ingest.CSVPath = ingestCSV
	}
	if cmd.Flags().Changed("renamed-csv") {
		cfg.Ingest.RenamedCSVPath = ingestRenamed
	}
	if cmd.Flags().Changed("roundtrip") {
		cfg.Ingest.RelationalRoundtrip = ingestRoundtrip
	}
	if cmd.Flags().Changed("symmetric") {
		cfg.Linker.Symmetric = ingestSymmetric
	}
	if ingestNoWipe {
		cfg.Ingest.Wipe = false
	}

	runID := uuid.New().String()
	ctx := context.WithValue(cmd.Context(), types.ContextKeyRunID, runID)
	ctx = context.WithValue(ctx, types.ContextKeySource, "ingest")
	log := appLogger.With("run_id", runID)

	table, err := loader.Load(cfg.Ingest.CSVPath)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "loaded csv", "path", cfg.Ingest.CSVPath, "rows", len(table.Records))

	if cfg.Ingest.RenamedCSVPath != "" {
		if err := loader.WriteRenamed(cfg.Ingest.RenamedCSVPath, table); err != nil {
			return err
		}
		log.InfoContext(ctx, "wrote renamed csv", "path", cfg.Ingest.RenamedCSVPath)
	}

	records := table.Records
	if cfg.Ingest.RelationalRoundtrip {
		if records, err = roundtrip(ctx, table); err != nil {
			return err
		}
	}

	client, err := openClient(ctx, ingestDryRun)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	report, err := client.Ingest(ctx, records, ingest.Options{
		Wipe:        cfg.Ingest.Wipe,
		SkipLinking: ingestNoLink,
		Targets:     linker.DefaultTargets,
	})
	if report != nil {
		printIngestReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}

	if ingestSample > 0 {
		nodes, err := client.Driver().SampleNodes(ctx, types.LabelProblem, ingestSample)
		if err != nil {
			log.WarnContext(ctx, "failed to sample nodes", "error", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "\nSample %s nodes:\n", types.LabelProblem)
			for _, n := range nodes {
				fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", n.Properties[types.PropText])
			}
		}
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

// roundtrip stages the renamed rows in the relational store, exports them
// back and reloads the export, so the graph is built from what the staging
// table holds.
func roundtrip(ctx context.Context, table *loader.Table) ([]types.ServiceRecord, error) {
	store, err := relational.Open(ctx, cfg.Relational.Backend, cfg.Relational.DSN(), appLogger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	source := cfg.Ingest.RenamedCSVPath
	if source == "" {
		source = cfg.Ingest.CSVPath
	}
	if _, err := store.RoundTrip(ctx, source, cfg.Relational.Table, cfg.Ingest.ExportPath); err != nil {
		return nil, err
	}
	exported, err := loader.Load(cfg.Ingest.ExportPath)
	if err != nil {
		return nil, err
	}
	if len(exported.Records) != len(table.Records) {
		appLogger.WarnContext(ctx, "staging round trip changed the row count",
			"before", len(table.Records), "after", len(exported.Records))
	}
	return exported.Records, nil
}

func printIngestReport(w io.Writer, r *ingest.PipelineReport) {
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	if r.WipeErr != nil {
		fmt.Fprintf(w, "Wipe failed, existing data kept: %v\n", r.WipeErr)
	}
	if r.Write != nil {
		fmt.Fprintf(w, "Rows: %d  written: %d  failed: %d\n", r.Write.Rows, r.Write.Written, r.Write.Failed())
		for _, f := range r.Write.Failures {
			fmt.Fprintf(w, "  %v\n", f)
		}
	}
	for _, l := range r.Links {
		fmt.Fprintf(w, "%-17s distinct: %-5d embedded: %-5d edges: %d\n", l.Label, l.Distinct, l.Embedded, l.Edges)
		if l.IndexErr != nil {
			fmt.Fprintf(w, "  vector index: %v\n", l.IndexErr)
		}
	}
	fmt.Fprintf(w, "Finished in %s\n", r.Duration)
}

func printStats(w io.Writer, s *types.GraphStats) {
	fmt.Fprintf(w, "\nNodes: %d  relationships: %d\n", s.NodeCount, s.EdgeCount)
	for _, counts := range []map[string]int64{s.NodesByLabel, s.EdgesByType} {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
		}
	}
}
