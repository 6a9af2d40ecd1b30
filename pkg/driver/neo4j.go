package driver

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/soundprediction/go-servicegraph/pkg/utils"
)

// Neo4jDriver implements the GraphDriver interface for Neo4j databases.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jDriver creates a new Neo4j driver instance. Managed transactions are
// configured to fail on the first error instead of retrying.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""),
		func(c *config.Config) {
			c.MaxTransactionRetryTime = 0
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:   driver,
		database: database,
	}, nil
}

func (n *Neo4jDriver) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database, AccessMode: mode})
}

// write runs one statement in its own write transaction inside a fresh session.
func (n *Neo4jDriver) write(ctx context.Context, query string, params map[string]any) error {
	session := n.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return classify("neo4j write", types.KindWrite, err)
}

// classify tags driver errors: connectivity problems are service outages,
// everything else takes the given kind.
func classify(op string, kind types.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return types.NewError(types.KindServiceUnavailable, op, err)
	}
	return types.NewError(kind, op, err)
}

// VerifyConnectivity checks that the server is reachable with the configured credentials.
func (n *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	if err := n.client.VerifyConnectivity(ctx); err != nil {
		return types.NewError(types.KindServiceUnavailable, "verify neo4j connectivity", err)
	}
	return nil
}

// Wipe removes every node and relationship.
func (n *Neo4jDriver) Wipe(ctx context.Context) error {
	return n.write(ctx, "MATCH (n) DETACH DELETE n", nil)
}

// OpenRecordSink opens a write session for a row load.
func (n *Neo4jDriver) OpenRecordSink(ctx context.Context) (RecordSink, error) {
	return &neo4jRecordSink{
		session:   n.session(ctx, neo4j.AccessModeWrite),
		statement: upsertStatement,
	}, nil
}

type neo4jRecordSink struct {
	session   neo4j.SessionWithContext
	statement string
}

func (s *neo4jRecordSink) Upsert(ctx context.Context, rec types.ServiceRecord) error {
	_, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, s.statement, rec.Params())
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return classify("upsert record", types.KindWrite, err)
}

func (s *neo4jRecordSink) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

// UpsertEmbedding merges (n:label {text}) and sets its embedding.
func (n *Neo4jDriver) UpsertEmbedding(ctx context.Context, label types.NodeLabel, text string, embedding []float32) error {
	query, err := embeddingStatement(label)
	if err != nil {
		return err
	}
	return n.write(ctx, query, map[string]any{
		"text":      text,
		"embedding": utils.ToFloat64s(embedding),
	})
}

// RecreateVectorIndex drops the label's vector index if present and creates
// it again over the embedding property.
func (n *Neo4jDriver) RecreateVectorIndex(ctx context.Context, label types.NodeLabel, dimensions int) error {
	drop, create, err := vectorIndexStatements(label, dimensions)
	if err != nil {
		return err
	}

	session := n.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// schema commands cannot share a transaction with each other
	for _, stmt := range []string{drop, create} {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return classify("vector index "+label.IndexName(), types.KindWrite, err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return classify("vector index "+label.IndexName(), types.KindWrite, err)
		}
	}
	return nil
}

// MergeSimilar merges a SIMILAR_TO relationship and refreshes its score.
func (n *Neo4jDriver) MergeSimilar(ctx context.Context, edge types.SimilarEdge) error {
	query, err := similarStatement(edge.Label)
	if err != nil {
		return err
	}
	return n.write(ctx, query, map[string]any{
		"source": edge.Source,
		"target": edge.Target,
		"score":  edge.Score,
	})
}

// SimilarEdges lists the SIMILAR_TO relationships between nodes of label.
func (n *Neo4jDriver) SimilarEdges(ctx context.Context, label types.NodeLabel) ([]types.SimilarEdge, error) {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		MATCH (a:%[1]s)-[r:SIMILAR_TO]->(b:%[1]s)
		RETURN a.text AS source, b.text AS target, r.score AS score
		ORDER BY source, target
	`, label)

	records, err := n.read(ctx, query, nil, 0)
	if err != nil {
		return nil, err
	}

	edges := make([]types.SimilarEdge, 0, len(records))
	for _, rec := range records {
		source, _, _ := neo4j.GetRecordValue[string](rec, "source")
		target, _, _ := neo4j.GetRecordValue[string](rec, "target")
		score, _, _ := neo4j.GetRecordValue[float64](rec, "score")
		edges = append(edges, types.SimilarEdge{Label: label, Source: source, Target: target, Score: score})
	}
	return edges, nil
}

// SimilarProblems queries the Problem vector index for the k nearest
// Problems and the context reachable from each.
func (n *Neo4jDriver) SimilarProblems(ctx context.Context, embedding []float32, k int) ([]types.ProblemMatch, error) {
	records, err := n.read(ctx, similarProblemsQuery, map[string]any{
		"index":     types.LabelProblem.IndexName(),
		"k":         k,
		"embedding": utils.ToFloat64s(embedding),
	}, 0)
	if err != nil {
		return nil, err
	}

	matches := make([]types.ProblemMatch, 0, len(records))
	for _, rec := range records {
		text, _, _ := neo4j.GetRecordValue[string](rec, "text")
		score, _, _ := neo4j.GetRecordValue[float64](rec, "score")
		matches = append(matches, types.ProblemMatch{
			Text:     text,
			Score:    score,
			Causes:   stringList(rec, "causes"),
			Actions:  stringList(rec, "actions"),
			Machines: stringList(rec, "machines"),
		})
	}
	return matches, nil
}

// RunReadQuery executes a caller-supplied statement in a read-only session and
// returns at most limit rows (all rows when limit <= 0). Nodes and
// relationships are flattened to property maps without embeddings.
func (n *Neo4jDriver) RunReadQuery(ctx context.Context, cypher string, params map[string]any, limit int) ([]map[string]any, error) {
	records, err := n.read(ctx, cypher, params, limit)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = plainValue(rec.Values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SampleNodes returns up to limit nodes carrying label.
func (n *Neo4jDriver) SampleNodes(ctx context.Context, label types.NodeLabel, limit int) ([]types.Node, error) {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return nil, err
	}
	records, err := n.read(ctx, fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT $limit", label),
		map[string]any{"limit": limit}, 0)
	if err != nil {
		return nil, err
	}

	nodes := make([]types.Node, 0, len(records))
	for _, rec := range records {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
		if err != nil {
			continue
		}
		nodes = append(nodes, types.Node{Labels: node.Labels, Properties: withoutEmbedding(node.Props)})
	}
	return nodes, nil
}

// Stats counts nodes per label and relationships per type.
func (n *Neo4jDriver) Stats(ctx context.Context) (*types.GraphStats, error) {
	nodeRecords, err := n.read(ctx, `
		MATCH (n)
		UNWIND labels(n) AS label
		RETURN label, count(*) AS count
	`, nil, 0)
	if err != nil {
		return nil, err
	}
	edgeRecords, err := n.read(ctx, `
		MATCH ()-[r]->()
		RETURN type(r) AS type, count(*) AS count
	`, nil, 0)
	if err != nil {
		return nil, err
	}

	stats := &types.GraphStats{
		NodesByLabel: make(map[string]int64),
		EdgesByType:  make(map[string]int64),
	}
	for _, rec := range nodeRecords {
		label, _, _ := neo4j.GetRecordValue[string](rec, "label")
		count, _, _ := neo4j.GetRecordValue[int64](rec, "count")
		stats.NodesByLabel[label] = count
		stats.NodeCount += count
	}
	for _, rec := range edgeRecords {
		relType, _, _ := neo4j.GetRecordValue[string](rec, "type")
		count, _, _ := neo4j.GetRecordValue[int64](rec, "count")
		stats.EdgesByType[relType] = count
		stats.EdgeCount += count
	}
	return stats, nil
}

// Close closes the underlying driver and its connection pool.
func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func (n *Neo4jDriver) read(ctx context.Context, query string, params map[string]any, limit int) ([]*neo4j.Record, error) {
	session := n.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var records []*neo4j.Record
		for res.Next(ctx) {
			records = append(records, res.Record())
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, classify("neo4j read", types.KindQuery, err)
	}
	records, _ := result.([]*neo4j.Record)
	return records, nil
}

func stringList(rec *neo4j.Record, key string) []string {
	raw, _, err := neo4j.GetRecordValue[[]any](rec, key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func plainValue(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return withoutEmbedding(val.Props)
	case dbtype.Relationship:
		props := withoutEmbedding(val.Props)
		props["type"] = val.Type
		return props
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = plainValue(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = plainValue(x)
		}
		return out
	default:
		return v
	}
}

func withoutEmbedding(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == types.PropEmbedding {
			continue
		}
		out[k] = v
	}
	return out
}
