// Package aggregate calls the connector chain for a row and merges the
// results into one AggregatedFinding.
package aggregate

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/connector"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
	"github.com/sells-group/triangulate/internal/resilience"
)

// Aggregator merges connector findings for one row at a time. It holds no
// per-row state and may be shared by concurrent workers.
type Aggregator struct {
	chain    connector.Chain
	norm     *normalize.Normalizer
	breakers resilience.Breakers
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBreakers attaches per-connector circuit breakers.
func WithBreakers(b resilience.Breakers) Option {
	return func(a *Aggregator) { a.breakers = b }
}

// New creates an Aggregator over a trust-ordered chain.
func New(chain connector.Chain, norm *normalize.Normalizer, opts ...Option) *Aggregator {
	a := &Aggregator{chain: chain, norm: norm}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate calls each connector in trust order and merges the results.
// Connector failures are recorded and skipped. Cancellation is honoured
// between calls: a call already in flight runs to its own timeout, and a
// cancelled row returns ctx.Err() and no finding.
func (a *Aggregator) Aggregate(ctx context.Context, org model.Organisation) (*model.AggregatedFinding, error) {
	finding := &model.AggregatedFinding{
		OrganisationID: org.ID,
		Candidates:     make(map[model.Field][]model.FieldCandidate),
	}
	sources := make(map[string]struct{})
	req := connector.RequestFor(org)

	for _, link := range a.chain {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "aggregate: row %s cancelled", org.ID)
		}

		start := time.Now()
		found, err := a.call(ctx, link, req)
		latency := time.Since(start)

		result := model.ConnectorResult{
			Name:      link.Name,
			Success:   err == nil,
			LatencyMS: latency.Milliseconds(),
		}
		if err != nil {
			result.Error = err.Error()
			finding.ConnectorResults = append(finding.ConnectorResults, result)
			zap.L().Warn("aggregate: connector failed",
				zap.String("row", org.ID),
				zap.String("connector", link.Name),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
			continue
		}
		finding.ConnectorResults = append(finding.ConnectorResults, result)
		a.merge(finding, sources, link, found)
	}

	finding.UniqueSources = normalize.SortedSet(sources)
	return finding, nil
}

// call invokes one connector with its timeout, converting panics and
// breaker rejections into soft failures.
func (a *Aggregator) call(ctx context.Context, link connector.Link, req connector.Request) (found *connector.Finding, err error) {
	cb := a.breakers.Get(link.Name)
	if err := cb.Allow(); err != nil {
		return nil, resilience.SoftFailure(link.Name, err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), link.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = resilience.SoftFailure(link.Name, &resilience.PanicError{Value: r})
		}
		cb.Record(err)
	}()

	found, err = link.Connector.Lookup(callCtx, req)
	if err != nil {
		return nil, resilience.SoftFailure(link.Name, err)
	}
	if found == nil {
		found = &connector.Finding{}
	}
	return found, nil
}

func (a *Aggregator) merge(finding *model.AggregatedFinding, sources map[string]struct{}, link connector.Link, found *connector.Finding) {
	for _, c := range found.Candidates {
		f, ok := model.ParseField(string(c.Field))
		if !ok {
			continue
		}
		c.Field = f
		c.Value = strings.TrimSpace(c.Value)
		if c.Value == "" {
			continue
		}
		c.Origin = link.Name
		c.TrustRank = link.TrustRank
		c.Confidence = Clamp(c.Confidence)
		c.SourceURLs = a.norm.URLs.NormalizeAll(c.SourceURLs)

		official := c.Official || found.Official
		for _, u := range c.SourceURLs {
			sources[u] = struct{}{}
			if a.norm.Official.IsOfficial(u) {
				official = true
			}
		}
		c.Official = official
		if official {
			finding.HasOfficialSource = true
		}
		finding.Candidates[c.Field] = append(finding.Candidates[c.Field], c)
	}
}

// Clamp bounds a confidence value to [0,100].
func Clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
