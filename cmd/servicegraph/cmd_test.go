package servicegraph

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = "SR ref no,SR date,commission date,machine model,serial number,component serial number," +
	"sub assembly,problem,problem summary,problem reported,failure mode,cause,corrective action," +
	"product category,assigned account,Name,type of activity,defect no,make,complaint category\n" +
	"SR-1,2024-01-02,2020-05-01,HX-200,1,C-1,pump,pump leaking,leak at seal,oil leak,wear,seal worn," +
	"replace seal,hydraulics,north,Acme Corp,repair,D-1,Acme,mechanical\n" +
	"SR-2,2024-01-03,2021-02-01,CV-9,2,C-2,belt,belt stuck,jam,belt jam,blockage,debris," +
	"clean rollers,conveyors,south,Beta Ltd,repair,D-2,Beta,mechanical\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	teardown()
	return out.String(), err
}

func writeTestFiles(t *testing.T) (configPath, csvPath, renamedPath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "servicegraph.yaml")
	csvPath = filepath.Join(dir, "records.csv")
	renamedPath = filepath.Join(dir, "renamed.csv")

	config := "log:\n  dir: \"\"\ncache:\n  enabled: false\ntelemetry:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))
	return configPath, csvPath, renamedPath
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestIngestDryRun(t *testing.T) {
	configPath, csvPath, renamedPath := writeTestFiles(t)

	out, err := execute(t, "ingest",
		"--config", configPath,
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--log-level", "error",
		"--csv", csvPath,
		"--renamed-csv", renamedPath,
		"--dry-run", "--no-link", "--sample", "5",
	)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Rows: 2  written: 2  failed: 0")
	assert.Contains(t, out, "Sample Problem nodes:")
	assert.Contains(t, out, "oil leak")
	assert.Contains(t, out, "ServiceRequest")

	renamed, err := os.ReadFile(renamedPath)
	require.NoError(t, err)
	header := strings.SplitN(string(renamed), "\n", 2)[0]
	assert.Contains(t, header, "SR_ref_no")
	assert.Contains(t, header, "problem_reported")
}

func TestIngestMissingFile(t *testing.T) {
	configPath, _, _ := writeTestFiles(t)

	_, err := execute(t, "ingest",
		"--config", configPath,
		"--log-level", "error",
		"--csv", filepath.Join(t.TempDir(), "nope.csv"),
		"--renamed-csv", "",
		"--dry-run",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load csv")
}
