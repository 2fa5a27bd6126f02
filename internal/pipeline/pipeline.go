// Package pipeline drives rows through aggregation, cross-validation,
// the quality gate and rollback planning, then publishes evidence.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/triangulate/internal/aggregate"
	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/connector"
	"github.com/sells-group/triangulate/internal/gate"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
	"github.com/sells-group/triangulate/internal/resilience"
	"github.com/sells-group/triangulate/internal/rollback"
	"github.com/sells-group/triangulate/internal/store"
	"github.com/sells-group/triangulate/internal/validate"
)

// ErrSinkExhausted is returned by Run when at least one row's evidence
// could not be published after every retry. Those rows are listed in
// Report.Retryable.
var ErrSinkExhausted = eris.New("evidence sink retries exhausted")

const defaultConcurrency = 4

// Pipeline holds everything constructed once per configuration. It keeps
// no per-run state and can run several datasets in sequence.
type Pipeline struct {
	chain    connector.Chain
	norm     *normalize.Normalizer
	engine   *validate.Engine
	gate     *gate.Gate
	required []model.Field
	breakers resilience.Breakers

	sink      *store.Serialized
	history   store.History
	sinkRetry resilience.RetryConfig

	concurrency int
	now         func() time.Time
	newRunID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink sets the evidence sink. Writes are serialized across rows.
func WithSink(s store.Sink) Option {
	return func(p *Pipeline) {
		p.sink = store.Serialize(s)
		if _, ok := s.(store.History); ok {
			p.history = p.sink
		}
	}
}

// WithConcurrency bounds how many rows are processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithSinkRetry sets the retry policy for evidence publication.
func WithSinkRetry(cfg resilience.RetryConfig) Option {
	return func(p *Pipeline) { p.sinkRetry = cfg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New validates settings and builds a pipeline over a trust-ordered chain.
// Invalid settings fail with config.ErrConfiguration before any row runs.
func New(settings config.Enrichment, chain connector.Chain, opts ...Option) (*Pipeline, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, eris.Wrap(config.ErrConfiguration, "pipeline: no enabled connectors")
	}

	norm := normalize.New(settings)
	p := &Pipeline{
		chain:       chain,
		norm:        norm,
		engine:      validate.NewEngine(settings, norm),
		gate:        gate.New(settings, norm),
		required:    gate.RequiredFields(settings.RequiredFields),
		sinkRetry:   resilience.DefaultRetryConfig(),
		concurrency: defaultConcurrency,
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = store.Serialize(store.Nop{})
	}

	breakerCfg := resilience.FromCircuitConfig(settings.CircuitFailureThreshold, settings.CircuitResetSecs)
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		zap.L().Warn("pipeline: connector circuit changed",
			zap.String("connector", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	p.breakers = resilience.NewBreakers(chain.Names(), breakerCfg)

	// Context errors end a run and fatal sink failures cannot succeed on
	// a second attempt.
	shouldRetry := p.sinkRetry.ShouldRetry
	p.sinkRetry.ShouldRetry = func(err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || resilience.IsFatal(err) {
			return false
		}
		if shouldRetry != nil {
			return shouldRetry(err)
		}
		return true
	}
	if p.sinkRetry.OnRetry == nil {
		p.sinkRetry.OnRetry = resilience.RetryLogger("evidence_sink", "record")
	}
	return p, nil
}

// Chain returns the connectors the pipeline calls, in trust order.
func (p *Pipeline) Chain() connector.Chain { return p.chain }

// Run processes rows with bounded parallelism and returns the run report.
// Rows are independent; cancelling ctx stops new rows from starting and
// excludes rows that had not finished. The report is returned even when
// the error is non-nil.
func (p *Pipeline) Run(ctx context.Context, rows []model.Organisation) (*Report, error) {
	report := &Report{
		RunID:     p.newRunID(),
		StartedAt: p.now().UTC(),
	}
	metrics := NewMetrics(p.chain.Names())
	agg := aggregate.New(p.chain, p.norm, aggregate.WithBreakers(p.breakers))

	log := zap.L().With(zap.String("run", report.RunID))
	log.Info("pipeline: run started",
		zap.Int("rows", len(rows)),
		zap.Strings("connectors", p.chain.Names()),
		zap.Int("concurrency", p.concurrency),
	)

	results := make([]*RowResult, len(rows))
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	var mu sync.Mutex
	var sinkErrs []error

	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.processRow(ctx, report.RunID, agg, metrics, rows[i])
			if err != nil {
				mu.Lock()
				sinkErrs = append(sinkErrs, err)
				mu.Unlock()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var deltas []model.ConfidenceDelta
	for i, res := range results {
		if res == nil {
			report.Excluded = append(report.Excluded, rows[i].ID)
			continue
		}
		report.Rows = append(report.Rows, *res)
		deltas = append(deltas, res.Deltas...)
		if res.Rollback != nil {
			report.RollbackPlans = append(report.RollbackPlans, *res.Rollback)
		}
		if res.Retry != nil {
			report.Retryable = append(report.Retryable, *res.Retry)
		}
	}
	report.Metrics = metrics.Snapshot(deltas)
	report.Metrics.OpenCircuits = p.breakers.NotClosed()
	report.SanityIssues = int(report.Metrics.Quarantines)
	report.FinishedAt = p.now().UTC()

	log.Info("pipeline: run complete",
		zap.String("summary", report.Summary()),
		zap.Int("rows", len(report.Rows)),
		zap.Int("excluded", len(report.Excluded)),
		zap.Int64("accepts", report.Metrics.Accepts),
		zap.Int64("rejections", report.Metrics.QualityRejections),
		zap.Int64("quarantines", report.Metrics.Quarantines),
		zap.Int64("adapter_failures", report.Metrics.AdapterFailures),
		zap.Strings("open_circuits", report.Metrics.OpenCircuits),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return report, eris.Wrapf(err, "pipeline: run %s cancelled", report.RunID)
	}
	if len(sinkErrs) > 0 {
		return report, eris.Wrapf(ErrSinkExhausted, "pipeline: %d rows not published: %v", len(sinkErrs), errors.Join(sinkErrs...))
	}
	return report, nil
}

// processRow runs one row end to end. It returns a nil result when the
// row was cancelled before it finished, and a non-nil error only when the
// row's evidence could not be published.
func (p *Pipeline) processRow(ctx context.Context, runID string, agg *aggregate.Aggregator, metrics *Metrics, row model.Organisation) (*RowResult, error) {
	log := zap.L().With(zap.String("run", runID), zap.String("org", row.ID))
	before := row.Clone()
	if before.Status == "" {
		before.Status = model.StatusCandidate
	}
	before.KnownSources = p.knownSources(ctx, log, before)

	finding, err := agg.Aggregate(ctx, before)
	if err != nil {
		log.Debug("pipeline: row cancelled during aggregation", zap.Error(err))
		return nil, nil
	}

	evidence := aggregate.Resolve(p.norm, before, finding)
	scores := p.engine.Validate(before, evidence)
	decisions := p.gate.DecideAll(before, evidence, scores)

	now := p.now()
	plan := rollback.Build(before.ID, decisions, now)
	after := rollback.Apply(before, decisions)
	after.KnownSources = mergeSources(after.KnownSources, decisions)
	after.Status = gate.Promote(before, after, decisions, p.required)
	after.Confidence = rowConfidence(before, decisions)

	if ctx.Err() != nil {
		log.Debug("pipeline: row cancelled before commit")
		return nil, nil
	}

	deltas := make([]model.ConfidenceDelta, 0, len(evidence))
	for _, ev := range evidence {
		deltas = append(deltas, scores[ev.Field].Delta())
	}
	for _, d := range decisions {
		log.Debug("pipeline: decision",
			zap.String("field", string(d.Field)),
			zap.String("action", string(d.Action)),
			zap.String("reason", string(d.Reason)),
			zap.Int("confidence", d.Confidence),
		)
	}

	res := &RowResult{
		RowID:             before.ID,
		Organisation:      after,
		Status:            after.Status,
		Decisions:         decisions,
		Deltas:            deltas,
		ConnectorResults:  finding.ConnectorResults,
		UniqueSources:     finding.UniqueSources,
		HasOfficialSource: finding.HasOfficialSource,
		Rollback:          plan,
	}

	// A row with nothing proposed leaves no evidence behind.
	if len(decisions) == 0 {
		metrics.observeRow(finding.ConnectorResults, scores, decisions)
		return res, nil
	}

	rec := rollback.Compose(runID, after, decisions, after.Status, now)
	res.Evidence = &rec
	attempts, err := resilience.Do(ctx, p.sinkRetry, func(ctx context.Context) error {
		return p.sink.Record(ctx, []model.EvidenceRecord{rec})
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("pipeline: row cancelled during publication", zap.Error(err))
			return nil, nil
		}
		failure := resilience.FatalFailure("evidence_sink.record", err)
		entry := resilience.NewRetryEntry(before.ID, failure, attempts, p.now())
		res.Retry = &entry
		log.Error("pipeline: evidence publication failed, row marked retryable",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		metrics.observeRow(finding.ConnectorResults, scores, decisions)
		return res, eris.Wrapf(failure, "row %s", before.ID)
	}

	metrics.observeRow(finding.ConnectorResults, scores, decisions)
	return res, nil
}

// knownSources merges sources recorded by earlier runs into the row's own
// list. A history lookup failure is logged and the row's list is used.
func (p *Pipeline) knownSources(ctx context.Context, log *zap.Logger, row model.Organisation) []string {
	if p.history == nil {
		return row.KnownSources
	}
	recorded, err := p.history.KnownSources(ctx, row.ID)
	if err != nil {
		log.Warn("pipeline: evidence history lookup failed", zap.Error(resilience.SoftFailure("history.known_sources", err)))
		return row.KnownSources
	}
	return p.norm.URLs.NormalizeAll(append(append([]string(nil), row.KnownSources...), recorded...))
}

// mergeSources adds the sources behind accepted decisions to known.
func mergeSources(known []string, decisions []model.QualityDecision) []string {
	seen := make(map[string]struct{}, len(known))
	out := append([]string(nil), known...)
	for _, s := range known {
		seen[s] = struct{}{}
	}
	for _, d := range decisions {
		if d.Action != model.ActionAccept {
			continue
		}
		for _, s := range d.Sources {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// rowConfidence is the lowest accepted confidence, or the clamped pre-run
// value when nothing was accepted.
func rowConfidence(before model.Organisation, decisions []model.QualityDecision) int {
	conf := -1
	for _, d := range decisions {
		if d.Action == model.ActionAccept && (conf < 0 || d.Confidence < conf) {
			conf = d.Confidence
		}
	}
	if conf < 0 {
		return aggregate.Clamp(before.Confidence)
	}
	return conf
}
