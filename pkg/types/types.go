package types

import (
	"strings"
)

// NodeLabel is a node label in the service-history graph.
type NodeLabel string

const (
	LabelServiceRequest    NodeLabel = "ServiceRequest"
	LabelMachine           NodeLabel = "Machine"
	LabelComponent         NodeLabel = "Component"
	LabelProblem           NodeLabel = "Problem"
	LabelFailureMode       NodeLabel = "FailureMode"
	LabelCause             NodeLabel = "Cause"
	LabelCorrectiveAction  NodeLabel = "CorrectiveAction"
	LabelProductCategory   NodeLabel = "ProductCategory"
	LabelAssignedAccount   NodeLabel = "AssignedAccount"
	LabelCustomer          NodeLabel = "Customer"
	LabelActivityType      NodeLabel = "ActivityType"
	LabelDefect            NodeLabel = "Defect"
	LabelMake              NodeLabel = "Make"
	LabelComplaintCategory NodeLabel = "ComplaintCategory"
)

// IndexName returns the derived vector index name for the label, e.g. "problem_index".
func (l NodeLabel) IndexName() string {
	return strings.ToLower(string(l)) + "_index"
}

// Valid reports whether the label is declared in Schema.
func (l NodeLabel) Valid() bool {
	_, ok := Schema.Node(l)
	return ok
}

// RelType is a relationship type in the service-history graph.
type RelType string

const (
	RelOnMachine            RelType = "ON_MACHINE"
	RelAssignedTo           RelType = "ASSIGNED_TO"
	RelHasCustomer          RelType = "HAS_CUSTOMER"
	RelHasActivity          RelType = "HAS_ACTIVITY"
	RelHasComplaintCategory RelType = "HAS_COMPLAINT_CATEGORY"
	RelMadeBy               RelType = "MADE_BY"
	RelBelongsTo            RelType = "BELONGS_TO"
	RelHasComponent         RelType = "HAS_COMPONENT"
	RelHasProblem           RelType = "HAS_PROBLEM"
	RelDefinedBy            RelType = "DEFINED_BY"
	RelHasFailureMode       RelType = "HAS_FAILURE_MODE"
	RelCausedBy             RelType = "CAUSED_BY"
	RelResolvedBy           RelType = "RESOLVED_BY"

	// RelSimilarTo is computed by the embedding linker, never written by the row statement.
	RelSimilarTo RelType = "SIMILAR_TO"
)

// Property names shared by the linker, the drivers and the query servicer.
const (
	PropText      = "text"
	PropEmbedding = "embedding"
	PropScore     = "score"
)

// Node is a read-only view of a graph node.
type Node struct {
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// SimilarEdge is a SIMILAR_TO relationship between two nodes of the same label,
// both identified by their text property.
type SimilarEdge struct {
	Label  NodeLabel `json:"label"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Score  float64   `json:"score"`
}

// ProblemMatch is one Problem returned by the vector index together with the
// causes, corrective actions and machine models reachable from it.
type ProblemMatch struct {
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Causes   []string `json:"causes"`
	Actions  []string `json:"actions"`
	Machines []string `json:"machines"`
}

// GraphStats holds node and relationship counts.
type GraphStats struct {
	NodeCount    int64            `json:"node_count"`
	EdgeCount    int64            `json:"edge_count"`
	NodesByLabel map[string]int64 `json:"nodes_by_label"`
	EdgesByType  map[string]int64 `json:"edges_by_type"`
}
