package pipeline

import (
	"fmt"
	"time"

	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/monitoring"
	"github.com/sells-group/triangulate/internal/resilience"
)

// RowResult is the outcome of one fully processed row.
type RowResult struct {
	RowID string `json:"row_id"`

	// Organisation is the row after accepted changes were applied.
	Organisation model.Organisation `json:"organisation"`
	Status       model.Status       `json:"status"`

	Decisions         []model.QualityDecision `json:"decisions"`
	Deltas            []model.ConfidenceDelta `json:"confidence_deltas,omitempty"`
	ConnectorResults  []model.ConnectorResult `json:"connector_results"`
	UniqueSources     []string                `json:"unique_sources"`
	HasOfficialSource bool                    `json:"has_official_source"`

	Rollback *model.RollbackPlan    `json:"rollback,omitempty"`
	Evidence *model.EvidenceRecord  `json:"evidence,omitempty"`
	Retry    *resilience.RetryEntry `json:"retry,omitempty"`
}

// Count returns the number of decisions with the given action.
func (r RowResult) Count(a model.Action) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

// Report is the run-level result returned by Run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Rows holds results in input order. Rows cancelled before they
	// finished are listed in Excluded instead.
	Rows     []RowResult `json:"rows"`
	Excluded []string    `json:"excluded,omitempty"`

	Metrics       MetricsSnapshot         `json:"metrics"`
	RollbackPlans []model.RollbackPlan    `json:"rollback_plans"`
	SanityIssues  int                     `json:"sanity_issues"`
	Retryable     []resilience.RetryEntry `json:"retryable,omitempty"`
}

// Rejections counts Reject decisions over every row.
func (r *Report) Rejections() int {
	n := 0
	for _, row := range r.Rows {
		n += row.Count(model.ActionReject)
	}
	return n
}

// Decisions counts every decision over every row.
func (r *Report) Decisions() int {
	n := 0
	for _, row := range r.Rows {
		n += len(row.Decisions)
	}
	return n
}

// Summary is the one-line outcome of the run. A run with rejections is
// still a completed run.
func (r *Report) Summary() string {
	s := fmt.Sprintf("completed with %d rejections", r.Rejections())
	if r.SanityIssues > 0 {
		s += fmt.Sprintf(", %d quarantined", r.SanityIssues)
	}
	if len(r.Retryable) > 0 {
		s += fmt.Sprintf(", %d rows retryable", len(r.Retryable))
	}
	if len(r.Excluded) > 0 {
		s += fmt.Sprintf(", %d rows excluded", len(r.Excluded))
	}
	return s
}

// Enriched returns the processed rows with accepted changes applied.
func (r *Report) Enriched() []model.Organisation {
	out := make([]model.Organisation, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, row.Organisation)
	}
	return out
}

// Health summarises the run for the alerter.
func (r *Report) Health() monitoring.RunHealth {
	return monitoring.RunHealth{
		RunID:           r.RunID,
		Rows:            len(r.Rows),
		ConnectorCalls:  r.Metrics.TotalConnectorCalls(),
		AdapterFailures: r.Metrics.AdapterFailures,
		Decisions:       int64(r.Decisions()),
		Rejections:      int64(r.Rejections()),
		RetryableRows:   len(r.Retryable),
	}
}
