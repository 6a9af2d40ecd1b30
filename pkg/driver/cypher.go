package driver

import (
	"fmt"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/soundprediction/go-servicegraph/pkg/utils"
)

// upsertStatement is the row statement derived once from types.Schema.
var upsertStatement = BuildUpsertStatement(types.Schema)

// BuildUpsertStatement renders the merge-or-create statement for one
// service record: every node merged on its identity keys with descriptive
// properties set afterwards, then every declared relationship merged.
func BuildUpsertStatement(schema types.GraphSchema) string {
	vars := make(map[types.NodeLabel]string, len(schema.Nodes))
	var b strings.Builder

	for _, n := range schema.Nodes {
		vars[n.Label] = n.Var
		keys := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = fmt.Sprintf("%s: $%s", k.Property, k.Column)
		}
		fmt.Fprintf(&b, "MERGE (%s:%s {%s})\n", n.Var, n.Label, strings.Join(keys, ", "))
		if len(n.Props) > 0 {
			sets := make([]string, len(n.Props))
			for i, p := range n.Props {
				sets[i] = fmt.Sprintf("%s.%s = $%s", n.Var, p.Property, p.Column)
			}
			fmt.Fprintf(&b, "SET %s\n", strings.Join(sets, ", "))
		}
	}
	for _, r := range schema.Rels {
		fmt.Fprintf(&b, "MERGE (%s)-[:%s]->(%s)\n", vars[r.From], r.Type, vars[r.To])
	}
	return b.String()
}

func embeddingStatement(label types.NodeLabel) (string, error) {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		MERGE (n:%s {text: $text})
		SET n.embedding = $embedding
	`, label), nil
}

func vectorIndexStatements(label types.NodeLabel, dimensions int) (drop, create string, err error) {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return "", "", err
	}
	name := label.IndexName()
	drop = fmt.Sprintf("DROP INDEX %s IF EXISTS", name)
	create = fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (n:%s) ON (n.embedding)
		OPTIONS {indexConfig: {
			`+"`vector.dimensions`"+`: %d,
			`+"`vector.similarity_function`"+`: 'cosine'
		}}
	`, name, label, dimensions)
	return drop, create, nil
}

func similarStatement(label types.NodeLabel) (string, error) {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		MATCH (a:%[1]s {text: $source})
		MATCH (b:%[1]s {text: $target})
		MERGE (a)-[r:SIMILAR_TO]->(b)
		SET r.score = $score
	`, label), nil
}

// similarProblemsQuery retrieves the nearest Problems and the causes,
// corrective actions and machine models around each one.
const similarProblemsQuery = `
	CALL db.index.vector.queryNodes($index, $k, $embedding)
	YIELD node AS problem, score
	OPTIONAL MATCH (problem)-[:CAUSED_BY]->(cause:Cause)
	OPTIONAL MATCH (cause)-[:RESOLVED_BY]->(action:CorrectiveAction)
	OPTIONAL MATCH (component:Component)-[:HAS_PROBLEM]->(problem)
	OPTIONAL MATCH (machine:Machine)-[:HAS_COMPONENT]->(component)
	OPTIONAL MATCH (req:ServiceRequest)-[:ON_MACHINE]->(machine)
	RETURN
		problem.text AS text,
		score,
		collect(DISTINCT cause.text) AS causes,
		collect(DISTINCT action.text) AS actions,
		collect(DISTINCT machine.model) AS machines
	ORDER BY score DESC
`
