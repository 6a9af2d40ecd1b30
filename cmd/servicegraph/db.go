package servicegraph

import (
	"fmt"

	"github.com/soundprediction/go-servicegraph/pkg/relational"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the relational staging store",
	Long: `Load CSV files into, and export them from, the relational staging store
(PostgreSQL via DB_NAME, DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, or a local
DuckDB file with --backend duckdb).`,
}

var (
	dbBackend string
	dbTable   string
	dbPath    string
)

var dbLoadCmd = &cobra.Command{
	Use:   "load <csv>",
	Short: "Replace a staging table with the contents of a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Load(cmd.Context(), args[0], cfg.Relational.Table)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d rows into %s\n", n, cfg.Relational.Table)
		return nil
	},
}

var dbExportCmd = &cobra.Command{
	Use:   "export <csv>",
	Short: "Write a staging table to a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Export(cmd.Context(), cfg.Relational.Table, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows from %s to %s\n", n, cfg.Relational.Table, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbLoadCmd, dbExportCmd)

	dbCmd.PersistentFlags().StringVar(&dbBackend, "backend", "", "postgres or duckdb (default from config)")
	dbCmd.PersistentFlags().StringVar(&dbTable, "table", "", "staging table (default from config)")
	dbCmd.PersistentFlags().StringVar(&dbPath, "path", "", "DuckDB file for the duckdb backend")
}

func openStore(cmd *cobra.Command) (*relational.Store, error) {
	if dbBackend != "" {
		cfg.Relational.Backend = dbBackend
	}
	if dbTable != "" {
		cfg.Relational.Table = dbTable
	}
	if dbPath != "" {
		cfg.Relational.Path = dbPath
	}
	return relational.Open(cmd.Context(), cfg.Relational.Backend, cfg.Relational.DSN(), appLogger.With("component", "relational"))
}
