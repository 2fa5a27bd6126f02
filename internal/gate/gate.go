// Package gate decides, per proposed field change, whether it is
// accepted, rejected or quarantined, and promotes the row status from
// the resulting decisions.
package gate

import (
	"fmt"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
	"github.com/sells-group/triangulate/internal/validate"
)

type state int

const (
	statePending state = iota
	stateFormatChecked
	stateEvidenceChecked
	stateDone
)

// formatFields are blocked by a hard format failure before any evidence
// rule is considered.
var formatFields = map[model.Field]bool{
	model.FieldPhone: true,
	model.FieldEmail: true,
}

// Gate is the quality gate. It is immutable and safe for concurrent use.
type Gate struct {
	acceptThreshold int
	quarantineBand  int
	minSources      int
	norm            *normalize.Normalizer
}

// New creates a gate from enrichment settings.
func New(s config.Enrichment, norm *normalize.Normalizer) *Gate {
	return &Gate{
		acceptThreshold: s.AcceptThreshold,
		quarantineBand:  s.QuarantineBand,
		minSources:      s.MinSources,
		norm:            norm,
	}
}

// Decide runs one field through the gate. previous is the row's pre-run
// value for the field.
func (g *Gate) Decide(previous string, ev model.FieldEvidence, score validate.Score) model.QualityDecision {
	d := model.QualityDecision{
		Field:         ev.Field,
		PreviousValue: previous,
		ProposedValue: ev.Value,
		Confidence:    score.Final,
		Sources:       ev.Sources,
		Notes:         score.Notes(),
	}

	st := statePending
	for st != stateDone {
		switch st {
		case statePending:
			if formatFields[ev.Field] && score.Hard {
				reject(&d, model.ReasonFormatInvalid, hardReason(score))
				st = stateDone
				continue
			}
			st = stateFormatChecked

		case stateFormatChecked:
			switch {
			case len(ev.Sources) < g.minSources:
				reject(&d, model.ReasonInsufficientSources, fmt.Sprintf("%d unique sources, need %d", len(ev.Sources), g.minSources))
			case !ev.Official:
				reject(&d, model.ReasonNoOfficialSource, "no source on the official allow-list")
			case !ev.Fresh:
				reject(&d, model.ReasonStaleEvidence, "every source is already part of the recorded evidence")
			default:
				st = stateEvidenceChecked
				continue
			}
			st = stateDone

		case stateEvidenceChecked:
			switch {
			case score.Final < g.acceptThreshold:
				reject(&d, model.ReasonLowConfidence, fmt.Sprintf("confidence %d below %d", score.Final, g.acceptThreshold))
			case score.Inconsistent && score.Final < g.acceptThreshold+g.quarantineBand:
				d.Action = model.ActionQuarantine
				d.Reason = model.ReasonUnresolvedInconsistency
				d.Detail = fmt.Sprintf("confidence %d within %d of threshold with unresolved inconsistency", score.Final, g.quarantineBand)
			default:
				d.Action = model.ActionAccept
				d.ProposedValue = g.norm.Canonical(ev.Field, ev.Value)
			}
			st = stateDone
		}
	}
	return d
}

func reject(d *model.QualityDecision, reason model.Reason, detail string) {
	d.Action = model.ActionReject
	d.Reason = reason
	d.Detail = detail
}

func hardReason(score validate.Score) string {
	for _, o := range score.Outcomes {
		if o.Hard {
			return o.Reason
		}
	}
	return "format validation failed"
}

// DecideAll runs every piece of evidence through the gate in order.
func (g *Gate) DecideAll(org model.Organisation, evidence []model.FieldEvidence, scores map[model.Field]validate.Score) []model.QualityDecision {
	decisions := make([]model.QualityDecision, 0, len(evidence))
	for _, ev := range evidence {
		decisions = append(decisions, g.Decide(org.Get(ev.Field), ev, scores[ev.Field]))
	}
	return decisions
}
