package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/soundprediction/go-servicegraph/pkg/utils"
)

// ErrCypherUnsupported is returned by MemoryDriver.RunReadQuery.
var ErrCypherUnsupported = errors.New("the in-memory graph does not execute cypher")

type memNode struct {
	label types.NodeLabel
	props map[string]any
}

type memRel struct {
	from, to string // node ids
	relType  types.RelType
	props    map[string]any
}

// MemoryDriver is an in-process GraphDriver with the same merge-or-create
// semantics as the Neo4j row statement. It backs dry-run ingestion and tests.
// Vector search is exhaustive and reports scores on Neo4j's cosine scale,
// (1 + cos) / 2.
type MemoryDriver struct {
	mu      sync.RWMutex
	nodes   map[string]*memNode // id -> node
	rels    map[string]*memRel  // from|type|to -> rel
	indexes map[types.NodeLabel]int
	closed  bool
}

// NewMemoryDriver creates an empty in-memory graph.
func NewMemoryDriver() *MemoryDriver {
	m := &MemoryDriver{}
	m.reset()
	return m
}

func (m *MemoryDriver) reset() {
	m.nodes = make(map[string]*memNode)
	m.rels = make(map[string]*memRel)
	m.indexes = make(map[types.NodeLabel]int)
}

// nodeID derives a node identity from its label and merge properties.
func nodeID(label types.NodeLabel, keys map[string]any) string {
	parts := make([]string, 0, len(keys))
	for k, v := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return string(label) + "\x1e" + strings.Join(parts, "\x1f")
}

// merge returns the node id for (label, keys), creating the node if needed.
func (m *MemoryDriver) merge(label types.NodeLabel, keys map[string]any) string {
	id := nodeID(label, keys)
	if _, ok := m.nodes[id]; !ok {
		props := make(map[string]any, len(keys))
		for k, v := range keys {
			props[k] = v
		}
		m.nodes[id] = &memNode{label: label, props: props}
	}
	return id
}

func (m *MemoryDriver) mergeRel(from string, relType types.RelType, to string) *memRel {
	key := from + "|" + string(relType) + "|" + to
	rel, ok := m.rels[key]
	if !ok {
		rel = &memRel{from: from, to: to, relType: relType, props: map[string]any{}}
		m.rels[key] = rel
	}
	return rel
}

func (m *MemoryDriver) check() error {
	if m.closed {
		return types.NewError(types.KindServiceUnavailable, "memory graph", errors.New("driver closed"))
	}
	return nil
}

// VerifyConnectivity reports an error only after Close.
func (m *MemoryDriver) VerifyConnectivity(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check()
}

// Close marks the driver closed; later calls fail.
func (m *MemoryDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Wipe removes every node, relationship and index.
func (m *MemoryDriver) Wipe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.reset()
	return nil
}

// OpenRecordSink returns a sink that applies rows to the in-memory graph.
func (m *MemoryDriver) OpenRecordSink(ctx context.Context) (RecordSink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	return memorySink{m: m}, nil
}

type memorySink struct {
	m *MemoryDriver
}

func (s memorySink) Upsert(ctx context.Context, rec types.ServiceRecord) error {
	return s.m.upsertRecord(rec)
}

func (s memorySink) Close(ctx context.Context) error { return nil }

func (m *MemoryDriver) upsertRecord(rec types.ServiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	ids := make(map[types.NodeLabel]string, len(types.Schema.Nodes))
	for _, spec := range types.Schema.Nodes {
		keys := make(map[string]any, len(spec.Keys))
		for _, k := range spec.Keys {
			keys[k.Property], _ = rec.Field(k.Column)
		}
		id := m.merge(spec.Label, keys)
		for _, p := range spec.Props {
			m.nodes[id].props[p.Property], _ = rec.Field(p.Column)
		}
		ids[spec.Label] = id
	}
	for _, r := range types.Schema.Rels {
		m.mergeRel(ids[r.From], r.Type, ids[r.To])
	}
	return nil
}

// UpsertEmbedding merges (label {text}) and sets its embedding.
func (m *MemoryDriver) UpsertEmbedding(ctx context.Context, label types.NodeLabel, text string, embedding []float32) error {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	id := m.merge(label, map[string]any{types.PropText: text})
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	m.nodes[id].props[types.PropEmbedding] = vec
	return nil
}

// RecreateVectorIndex records that label is searchable.
func (m *MemoryDriver) RecreateVectorIndex(ctx context.Context, label types.NodeLabel, dimensions int) error {
	if err := utils.ValidateIdentifier(string(label)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.indexes, label)
	m.indexes[label] = dimensions
	return nil
}

// MergeSimilar merges a SIMILAR_TO relationship between existing nodes. Like
// the Cypher MATCH it mirrors, a missing endpoint is a silent no-op.
func (m *MemoryDriver) MergeSimilar(ctx context.Context, edge types.SimilarEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	from := m.findByText(edge.Label, edge.Source)
	to := m.findByText(edge.Label, edge.Target)
	if len(from) == 0 || len(to) == 0 {
		return nil
	}
	for _, a := range from {
		for _, b := range to {
			m.mergeRel(a, types.RelSimilarTo, b).props[types.PropScore] = edge.Score
		}
	}
	return nil
}

func (m *MemoryDriver) findByText(label types.NodeLabel, text string) []string {
	var ids []string
	for id, n := range m.nodes {
		if n.label == label && n.props[types.PropText] == text {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SimilarEdges lists SIMILAR_TO relationships between nodes of label.
func (m *MemoryDriver) SimilarEdges(ctx context.Context, label types.NodeLabel) ([]types.SimilarEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var edges []types.SimilarEdge
	for _, r := range m.rels {
		if r.relType != types.RelSimilarTo {
			continue
		}
		a, b := m.nodes[r.from], m.nodes[r.to]
		if a.label != label || b.label != label {
			continue
		}
		score, _ := r.props[types.PropScore].(float64)
		edges = append(edges, types.SimilarEdge{
			Label:  label,
			Source: fmt.Sprint(a.props[types.PropText]),
			Target: fmt.Sprint(b.props[types.PropText]),
			Score:  score,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges, nil
}

// SimilarProblems ranks embedded Problem nodes by similarity to embedding.
// Without a Problem index it fails the way a missing Neo4j index does.
func (m *MemoryDriver) SimilarProblems(ctx context.Context, embedding []float32, k int) ([]types.ProblemMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if _, ok := m.indexes[types.LabelProblem]; !ok {
		return nil, fmt.Errorf("there is no such vector schema index: %s", types.LabelProblem.IndexName())
	}

	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for id, n := range m.nodes {
		if n.label != types.LabelProblem {
			continue
		}
		vec, ok := n.props[types.PropEmbedding].([]float32)
		if !ok {
			continue
		}
		cos := utils.CosineSimilarity(embedding, vec)
		candidates = append(candidates, scored{id: id, score: (1 + cos) / 2})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	matches := make([]types.ProblemMatch, 0, len(candidates))
	for _, c := range candidates {
		match := types.ProblemMatch{
			Text:     fmt.Sprint(m.nodes[c.id].props[types.PropText]),
			Score:    c.score,
			Causes:   []string{},
			Actions:  []string{},
			Machines: []string{},
		}
		causes := m.targets(c.id, types.RelCausedBy)
		for _, cause := range causes {
			match.Causes = append(match.Causes, fmt.Sprint(m.nodes[cause].props[types.PropText]))
			for _, action := range m.targets(cause, types.RelResolvedBy) {
				match.Actions = append(match.Actions, fmt.Sprint(m.nodes[action].props[types.PropText]))
			}
		}
		for _, component := range m.sources(c.id, types.RelHasProblem) {
			for _, machine := range m.sources(component, types.RelHasComponent) {
				match.Machines = append(match.Machines, fmt.Sprint(m.nodes[machine].props["model"]))
			}
		}
		match.Causes = distinctSorted(match.Causes)
		match.Actions = distinctSorted(match.Actions)
		match.Machines = distinctSorted(match.Machines)
		matches = append(matches, match)
	}
	return matches, nil
}

func (m *MemoryDriver) targets(from string, relType types.RelType) []string {
	var out []string
	for _, r := range m.rels {
		if r.from == from && r.relType == relType {
			out = append(out, r.to)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MemoryDriver) sources(to string, relType types.RelType) []string {
	var out []string
	for _, r := range m.rels {
		if r.to == to && r.relType == relType {
			out = append(out, r.from)
		}
	}
	sort.Strings(out)
	return out
}

// RunReadQuery is not supported in memory.
func (m *MemoryDriver) RunReadQuery(ctx context.Context, cypher string, params map[string]any, limit int) ([]map[string]any, error) {
	return nil, ErrCypherUnsupported
}

// SampleNodes returns up to limit nodes of label in a stable order.
func (m *MemoryDriver) SampleNodes(ctx context.Context, label types.NodeLabel, limit int) ([]types.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var ids []string
	for id, n := range m.nodes {
		if n.label == label {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	nodes := make([]types.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, types.Node{
			Labels:     []string{string(label)},
			Properties: withoutEmbedding(m.nodes[id].props),
		})
	}
	return nodes, nil
}

// Stats counts nodes per label and relationships per type.
func (m *MemoryDriver) Stats(ctx context.Context) (*types.GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	stats := &types.GraphStats{
		NodeCount:    int64(len(m.nodes)),
		EdgeCount:    int64(len(m.rels)),
		NodesByLabel: make(map[string]int64),
		EdgesByType:  make(map[string]int64),
	}
	for _, n := range m.nodes {
		stats.NodesByLabel[string(n.label)]++
	}
	for _, r := range m.rels {
		stats.EdgesByType[string(r.relType)]++
	}
	return stats, nil
}

func distinctSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
