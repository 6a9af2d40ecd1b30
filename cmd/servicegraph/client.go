package servicegraph

import (
	"context"
	"fmt"
	"time"

	sg "github.com/soundprediction/go-servicegraph"
	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// connectTimeout bounds the initial connectivity check.
const connectTimeout = 15 * time.Second

// openClient builds the client from the loaded configuration. With inMemory
// the graph lives in process and nothing is written to Neo4j.
func openClient(ctx context.Context, inMemory bool) (*sg.Client, error) {
	opts := sg.Options{Telemetry: telemetryDB, Logger: appLogger}
	if inMemory {
		opts.Driver = driver.NewMemoryDriver()
	}
	client, err := sg.Open(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Driver().VerifyConnectivity(pingCtx); err != nil {
		client.Close(ctx)
		return nil, types.NewError(types.KindServiceUnavailable, "connect",
			fmt.Errorf("graph database at %s is unreachable: %w", cfg.Database.URI, err))
	}
	return client, nil
}
