package driver_test

import (
	"strings"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestBuildUpsertStatement(t *testing.T) {
	stmt := driver.BuildUpsertStatement(types.Schema)

	assert.Contains(t, stmt, "MERGE (sr:ServiceRequest {id: $SR_ref_no})\nSET sr.date = $SR_date, sr.commission_date = $commission_date\n")
	assert.Contains(t, stmt, "MERGE (machine:Machine {model: $machine_model, serial_number: $serial_number})")
	assert.Contains(t, stmt, "MERGE (problem:Problem {text: $problem_reported})\nSET problem.description = $problem, problem.summary = $problem_summary\n")
	assert.Contains(t, stmt, "MERGE (customer:Customer {name: $Name})")
	assert.Contains(t, stmt, "MERGE (cause)-[:RESOLVED_BY]->(action)")
	assert.Contains(t, stmt, "MERGE (component)-[:HAS_PROBLEM]->(problem)")

	assert.Equal(t, 14+13, strings.Count(stmt, "MERGE ("))
	assert.NotContains(t, stmt, "SIMILAR_TO")

	// every parameter in the statement is bound by ServiceRecord.Params
	params := types.ServiceRecord{}.Params()
	for _, tok := range strings.Fields(stmt) {
		i := strings.Index(tok, "$")
		if i < 0 {
			continue
		}
		name := strings.TrimRight(tok[i+1:], ",})")
		_, ok := params[name]
		assert.True(t, ok, "unbound parameter %q", name)
	}
}
