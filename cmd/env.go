package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/connector"
	"github.com/sells-group/triangulate/internal/pipeline"
	"github.com/sells-group/triangulate/internal/resilience"
	"github.com/sells-group/triangulate/internal/store"
)

// runEnv holds the sink and the pipeline needed by the run and serve
// commands.
type runEnv struct {
	Sink     store.Sink
	Pipeline *pipeline.Pipeline
}

// Close releases the evidence sink.
func (e *runEnv) Close() {
	if e.Sink != nil {
		if err := e.Sink.Close(); err != nil {
			zap.L().Warn("close evidence sink", zap.Error(err))
		}
	}
}

// offlineConnectors drops connectors that would reach the network.
func offlineConnectors(cfgs []config.ConnectorConfig) []config.ConnectorConfig {
	var out []config.ConnectorConfig
	for _, c := range cfgs {
		if c.Kind == "http" {
			zap.L().Info("offline: skipping connector", zap.String("connector", c.Name))
			continue
		}
		out = append(out, c)
	}
	return out
}

// buildChain validates the configuration and instantiates the connector
// chain. Every failure wraps config.ErrConfiguration.
func buildChain(c *config.Config, offline bool) (connector.Chain, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfgs := c.Connectors
	if offline {
		cfgs = offlineConnectors(cfgs)
	}
	return connector.NewRegistry().Build(cfgs)
}

// initRunEnv validates the configuration, builds the connector chain,
// opens the evidence sink and assembles the pipeline. Callers should
// defer env.Close().
func initRunEnv(ctx context.Context, c *config.Config, offline bool) (*runEnv, error) {
	chain, err := buildChain(c, offline)
	if err != nil {
		return nil, err
	}

	sink, err := store.Open(ctx, c.Sink)
	if err != nil {
		return nil, eris.Wrap(err, "open evidence sink")
	}

	p, err := pipeline.New(c.Enrichment, chain,
		pipeline.WithSink(sink),
		pipeline.WithConcurrency(c.Batch.MaxConcurrentRows),
		pipeline.WithSinkRetry(resilience.FromRetryConfig(c.Sink.MaxAttempts, c.Sink.InitialBackoff)),
	)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}

	zap.L().Info("pipeline ready",
		zap.Strings("connectors", chain.Names()),
		zap.String("sink", c.Sink.Driver),
		zap.Int("concurrency", c.Batch.MaxConcurrentRows),
	)
	return &runEnv{Sink: sink, Pipeline: p}, nil
}
