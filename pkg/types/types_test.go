package types_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRecordParams(t *testing.T) {
	rec := types.ServiceRecord{SRRefNo: "SR-1", ProblemReported: "leak", Make: "Acme"}

	params := rec.Params()
	require.Len(t, params, len(types.Columns))
	assert.Equal(t, "SR-1", params[types.ColSRRefNo])
	assert.Equal(t, "leak", params[types.ColProblemReported])
	assert.Equal(t, "Acme", params[types.ColMake])

	// absent values are bound as empty strings, never nil
	for _, col := range types.Columns {
		v, ok := params[col]
		require.True(t, ok, col)
		assert.IsType(t, "", v, col)
	}
	assert.Equal(t, "", params[types.ColCause])
}

func TestServiceRecordFieldAndSet(t *testing.T) {
	var rec types.ServiceRecord

	assert.True(t, rec.Set(types.ColCause, "worn seal"))
	assert.False(t, rec.Set("unknown", "x"))

	v, ok := rec.Field(types.ColCause)
	assert.True(t, ok)
	assert.Equal(t, "worn seal", v)
	assert.Equal(t, "worn seal", rec.Cause)

	_, ok = rec.Field("unknown")
	assert.False(t, ok)

	values := rec.Values()
	require.Len(t, values, len(types.Columns))
	assert.Equal(t, "worn seal", values[11])
}

func TestSchema(t *testing.T) {
	assert.Len(t, types.Schema.Nodes, 14)
	assert.Len(t, types.Schema.Rels, 13)

	spec, ok := types.Schema.Node(types.LabelProblem)
	require.True(t, ok)
	assert.Equal(t, []types.Binding{{Property: "text", Column: types.ColProblemReported}}, spec.Keys)
	assert.Len(t, spec.Props, 2)

	assert.True(t, types.LabelCorrectiveAction.Valid())
	assert.False(t, types.NodeLabel("Widget").Valid())
	assert.Equal(t, "correctiveaction_index", types.LabelCorrectiveAction.IndexName())
	assert.Equal(t, "problem_index", types.LabelProblem.IndexName())

	// every bound column exists on the record
	var rec types.ServiceRecord
	for _, n := range types.Schema.Nodes {
		for _, b := range append(append([]types.Binding{}, n.Keys...), n.Props...) {
			_, ok := rec.Field(b.Column)
			assert.True(t, ok, "%s.%s -> %s", n.Label, b.Property, b.Column)
		}
	}
}

func TestSchemaDescribe(t *testing.T) {
	desc := types.Schema.Describe()
	assert.Contains(t, desc, "ServiceRequest {id: STRING, date: STRING, commission_date: STRING}")
	assert.Contains(t, desc, "(:Cause)-[:RESOLVED_BY]->(:CorrectiveAction)")
	assert.Contains(t, desc, "(:Problem)-[:SIMILAR_TO]->(:Problem)")
	assert.Equal(t, 13+3, strings.Count(desc, "]->(:"))
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("connection refused")
	err := types.NewError(types.KindServiceUnavailable, "embed question", base)
	wrapped := fmt.Errorf("ask: %w", err)

	assert.Equal(t, types.KindServiceUnavailable, types.KindOf(wrapped))
	assert.True(t, types.IsKind(wrapped, types.KindServiceUnavailable))
	assert.False(t, types.IsKind(wrapped, types.KindQuery))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "embed question: connection refused", err.Error())

	assert.Equal(t, types.KindUnknown, types.KindOf(base))
	assert.Equal(t, types.ErrorKind(""), types.KindOf(nil))
	assert.False(t, types.IsKind(nil, types.KindUnknown))

	bare := types.NewError(types.KindNoMatch, "vector query", nil)
	assert.Equal(t, "vector query: no_match", bare.Error())
}
