package driver

import (
	"context"

	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// GraphDriver defines the graph store operations used by the ingestion
// pipeline and the query servicer. Each call is one logical operation and
// owns its session.
type GraphDriver interface {
	// Connection management
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error

	// Wipe detach-deletes every node in the database.
	Wipe(ctx context.Context) error

	// OpenRecordSink opens a session for a row load. Each Upsert on the sink
	// runs the row statement in its own write transaction.
	OpenRecordSink(ctx context.Context) (RecordSink, error)

	// Embedding and similarity operations
	UpsertEmbedding(ctx context.Context, label types.NodeLabel, text string, embedding []float32) error
	RecreateVectorIndex(ctx context.Context, label types.NodeLabel, dimensions int) error
	MergeSimilar(ctx context.Context, edge types.SimilarEdge) error
	SimilarEdges(ctx context.Context, label types.NodeLabel) ([]types.SimilarEdge, error)

	// Read operations
	SimilarProblems(ctx context.Context, embedding []float32, k int) ([]types.ProblemMatch, error)
	RunReadQuery(ctx context.Context, cypher string, params map[string]any, limit int) ([]map[string]any, error)
	SampleNodes(ctx context.Context, label types.NodeLabel, limit int) ([]types.Node, error)
	Stats(ctx context.Context) (*types.GraphStats, error)
}

// RecordSink upserts service records inside one session.
type RecordSink interface {
	Upsert(ctx context.Context, rec types.ServiceRecord) error
	Close(ctx context.Context) error
}
