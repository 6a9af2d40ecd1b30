package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(sr, problem string) types.ServiceRecord {
	return types.ServiceRecord{
		SRRefNo:               sr,
		SRDate:                "2024-03-01",
		MachineModel:          "HX-200",
		SerialNumber:          "SN-1",
		ComponentSerialNumber: "C-1",
		SubAssembly:           "pump",
		ProblemReported:       problem,
		Cause:                 "seal worn",
		CorrectiveAction:      "replace seal",
	}
}

// flakyDriver rejects records whose SR number is listed in reject.
type flakyDriver struct {
	*driver.MemoryDriver
	reject map[string]bool
}

func (f flakyDriver) OpenRecordSink(ctx context.Context) (driver.RecordSink, error) {
	inner, err := f.MemoryDriver.OpenRecordSink(ctx)
	if err != nil {
		return nil, err
	}
	return flakySink{inner: inner, reject: f.reject}, nil
}

type flakySink struct {
	inner  driver.RecordSink
	reject map[string]bool
}

func (s flakySink) Upsert(ctx context.Context, rec types.ServiceRecord) error {
	if s.reject[rec.SRRefNo] {
		return errors.New("Neo.ClientError.Statement.SemanticError")
	}
	return s.inner.Upsert(ctx, rec)
}

func (s flakySink) Close(ctx context.Context) error { return s.inner.Close(ctx) }

func TestWriteMergesDuplicates(t *testing.T) {
	ctx := context.Background()
	mem := driver.NewMemoryDriver()
	w := ingest.NewWriter(mem, nil)

	report, err := w.Write(ctx, []types.ServiceRecord{record("SR-1", "leak"), record("SR-2", "leak"), record("SR-3", "jam")})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 3, report.Written)
	assert.Zero(t, report.Failed())

	stats, err := mem.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.NodesByLabel[string(types.LabelProblem)])
	assert.EqualValues(t, 3, stats.NodesByLabel[string(types.LabelServiceRequest)])

	// unchanged data gives unchanged counts
	_, err = w.Write(ctx, []types.ServiceRecord{record("SR-1", "leak"), record("SR-2", "leak"), record("SR-3", "jam")})
	require.NoError(t, err)
	again, err := mem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats, again)
}

func TestWriteSkipsFailedRows(t *testing.T) {
	ctx := context.WithValue(context.Background(), types.ContextKeyRunID, "run-42")
	d := flakyDriver{MemoryDriver: driver.NewMemoryDriver(), reject: map[string]bool{"SR-2": true}}

	report, err := ingest.NewWriter(d, nil).Write(ctx, []types.ServiceRecord{
		record("SR-1", "leak"), record("SR-2", "noise"), record("SR-3", "jam"),
	})
	require.NoError(t, err)
	assert.Equal(t, "run-42", report.RunID)
	assert.Equal(t, 2, report.Written)
	require.Len(t, report.Failures, 1)

	f := report.Failures[0]
	assert.Equal(t, 2, f.Row)
	assert.Equal(t, "SR-2", f.ServiceRequestID)
	assert.True(t, types.IsKind(f.Err, types.KindWrite))
	assert.Contains(t, f.Error(), "row 2 (SR-2)")

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.NodesByLabel[string(types.LabelProblem)])
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := ingest.NewWriter(driver.NewMemoryDriver(), nil).Write(ctx, []types.ServiceRecord{record("SR-1", "leak")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Written)
}

func TestWriteClosedDriver(t *testing.T) {
	ctx := context.Background()
	mem := driver.NewMemoryDriver()
	require.NoError(t, mem.Close(ctx))

	w := ingest.NewWriter(mem, nil)
	report, err := w.Write(ctx, []types.ServiceRecord{record("SR-1", "leak")})
	assert.True(t, types.IsKind(err, types.KindServiceUnavailable))
	assert.Zero(t, report.Written)
	assert.True(t, types.IsKind(w.Wipe(ctx), types.KindWrite))
}
