package pipeline

import (
	"sync/atomic"

	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/validate"
)

type connectorStats struct {
	calls     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	latencyMS atomic.Int64
}

// Metrics holds the run counters shared by all row workers. Every field
// is updated atomically; the connector map is fixed at construction.
type Metrics struct {
	connectors map[string]*connectorStats

	adapterFailures   atomic.Int64
	qualityRejections atomic.Int64
	qualityIssues     atomic.Int64
	quarantines       atomic.Int64
	accepts           atomic.Int64
}

// NewMetrics creates counters for the named connectors.
func NewMetrics(connectors []string) *Metrics {
	m := &Metrics{connectors: make(map[string]*connectorStats, len(connectors))}
	for _, n := range connectors {
		m.connectors[n] = &connectorStats{}
	}
	return m
}

// observeRow records the outcome of a committed row. Rows excluded from
// the report never reach it.
func (m *Metrics) observeRow(results []model.ConnectorResult, scores map[model.Field]validate.Score, decisions []model.QualityDecision) {
	for _, r := range results {
		m.connectorCall(r)
	}
	for _, s := range scores {
		for _, o := range s.Outcomes {
			if !o.Consistent {
				m.qualityIssues.Add(1)
			}
		}
	}
	for _, d := range decisions {
		switch d.Action {
		case model.ActionAccept:
			m.accepts.Add(1)
		case model.ActionReject:
			m.qualityRejections.Add(1)
		case model.ActionQuarantine:
			m.quarantines.Add(1)
		}
	}
}

func (m *Metrics) connectorCall(r model.ConnectorResult) {
	if !r.Success {
		m.adapterFailures.Add(1)
	}
	s, ok := m.connectors[r.Name]
	if !ok {
		return
	}
	s.calls.Add(1)
	s.latencyMS.Add(r.LatencyMS)
	if r.Success {
		s.successes.Add(1)
	} else {
		s.failures.Add(1)
	}
}

// MetricsSnapshot is the reported view of Metrics.
type MetricsSnapshot struct {
	ConnectorCalls     map[string]int64 `json:"connector_calls"`
	ConnectorSuccess   map[string]int64 `json:"connector_success"`
	ConnectorFailures  map[string]int64 `json:"connector_failures"`
	ConnectorLatencyMS map[string]int64 `json:"connector_latency_ms"`

	ConfidenceDeltas  []model.ConfidenceDelta `json:"confidence_deltas"`
	DeltaDistribution map[string]int          `json:"confidence_delta_distribution"`

	QualityRejections int64 `json:"quality_rejections"`
	QualityIssues     int64 `json:"quality_issues"`
	Quarantines       int64 `json:"quarantines"`
	Accepts           int64 `json:"accepts"`
	AdapterFailures   int64 `json:"adapter_failures"`

	// OpenCircuits names connectors whose breaker was not closed when the
	// run finished.
	OpenCircuits []string `json:"open_circuits,omitempty"`
}

// TotalConnectorCalls sums calls over every connector.
func (s MetricsSnapshot) TotalConnectorCalls() int64 {
	var n int64
	for _, c := range s.ConnectorCalls {
		n += c
	}
	return n
}

// Snapshot reads the counters. deltas are the confidence derivations of
// the rows included in the report.
func (m *Metrics) Snapshot(deltas []model.ConfidenceDelta) MetricsSnapshot {
	snap := MetricsSnapshot{
		ConnectorCalls:     make(map[string]int64, len(m.connectors)),
		ConnectorSuccess:   make(map[string]int64, len(m.connectors)),
		ConnectorFailures:  make(map[string]int64, len(m.connectors)),
		ConnectorLatencyMS: make(map[string]int64, len(m.connectors)),
		ConfidenceDeltas:   deltas,
		DeltaDistribution:  make(map[string]int),
		QualityRejections:  m.qualityRejections.Load(),
		QualityIssues:      m.qualityIssues.Load(),
		Quarantines:        m.quarantines.Load(),
		Accepts:            m.accepts.Load(),
		AdapterFailures:    m.adapterFailures.Load(),
	}
	for name, s := range m.connectors {
		snap.ConnectorCalls[name] = s.calls.Load()
		snap.ConnectorSuccess[name] = s.successes.Load()
		snap.ConnectorFailures[name] = s.failures.Load()
		snap.ConnectorLatencyMS[name] = s.latencyMS.Load()
	}
	for _, d := range deltas {
		snap.DeltaDistribution[deltaBucket(d.Adjustment)]++
	}
	return snap
}

func deltaBucket(adj int) string {
	switch {
	case adj <= -20:
		return "-20 or less"
	case adj < 0:
		return "-19 to -1"
	case adj == 0:
		return "0"
	case adj <= 10:
		return "+1 to +10"
	}
	return "above +10"
}
