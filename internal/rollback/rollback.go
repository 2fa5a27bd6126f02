// Package rollback describes how to undo non-accepted changes and
// composes the evidence records published for each row.
package rollback

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/triangulate/internal/model"
)

var remediation = map[model.Reason]string{
	model.ReasonFormatInvalid:           "Value failed format or domain validation. Confirm the %s directly with the organisation before re-entering it.",
	model.ReasonInsufficientSources:     "Only one independent source supports this %s. Find a second independent source and re-run.",
	model.ReasonNoOfficialSource:        "No regulator or government source confirms this %s. Check the official registry and re-run.",
	model.ReasonStaleEvidence:           "Evidence for this %s only repeats what is already recorded. Look for a source outside the organisation's own domain.",
	model.ReasonLowConfidence:           "Confidence in this %s is below the acceptance threshold. Gather corroborating evidence or verify manually.",
	model.ReasonUnresolvedInconsistency: "Evidence for this %s is inconsistent. An analyst should review the notes and resolve it manually.",
}

// Remediation returns the analyst guidance for a reason.
func Remediation(reason model.Reason, f model.Field) string {
	tmpl, ok := remediation[reason]
	if !ok {
		return ""
	}
	return fmt.Sprintf(tmpl, fieldLabel(f))
}

func fieldLabel(f model.Field) string {
	switch f {
	case model.FieldContactName:
		return "contact name"
	case model.FieldContactTitle:
		return "contact title"
	}
	return string(f)
}

// Build returns the rollback plan for a row, or nil when every decision
// was accepted. Decisions are annotated with remediation text in place.
func Build(rowID string, decisions []model.QualityDecision, now time.Time) *model.RollbackPlan {
	var held []model.QualityDecision
	for i := range decisions {
		d := &decisions[i]
		if d.Action == model.ActionAccept {
			continue
		}
		d.Remediation = Remediation(d.Reason, d.Field)
		held = append(held, *d)
	}
	if len(held) == 0 {
		return nil
	}
	return &model.RollbackPlan{RowID: rowID, Decisions: held, GeneratedAt: now.UTC()}
}

// Apply returns a copy of org with every accepted decision applied.
// Rejected and quarantined proposals are never written.
func Apply(org model.Organisation, decisions []model.QualityDecision) model.Organisation {
	out := org.Clone()
	for _, d := range decisions {
		if d.Action == model.ActionAccept {
			out.Set(d.Field, d.ProposedValue)
		}
	}
	return out
}

// Restore writes the plan's previous values back onto org. Applied to a
// row that only received non-accepted decisions it reproduces the pre-run
// row exactly.
func Restore(org model.Organisation, plan *model.RollbackPlan) model.Organisation {
	out := org.Clone()
	if plan == nil {
		return out
	}
	for _, d := range plan.Decisions {
		out.Set(d.Field, d.PreviousValue)
	}
	return out
}

// Compose builds the evidence record for a row from its accepted
// decisions, plus remediation notes for everything that was held back.
// Confidence is the lowest accepted confidence, or 0 when nothing was
// accepted.
func Compose(runID string, org model.Organisation, decisions []model.QualityDecision, status model.Status, now time.Time) model.EvidenceRecord {
	rec := model.EvidenceRecord{
		ID:           uuid.NewString(),
		RunID:        runID,
		RowID:        org.ID,
		Organisation: org.Name,
		Changes:      make(map[string]string),
		Status:       status,
		Timestamp:    now.UTC(),
	}

	sources := make(map[string]struct{})
	for _, d := range decisions {
		if d.Action != model.ActionAccept {
			note := fmt.Sprintf("%s %s (%s): %s", d.Field, actionVerb(d.Action), d.Reason, d.Detail)
			if d.Remediation != "" {
				note += " " + d.Remediation
			}
			rec.Notes = append(rec.Notes, note)
			continue
		}
		rec.Changes[string(d.Field)] = d.ProposedValue
		for _, s := range d.Sources {
			sources[s] = struct{}{}
		}
		rec.Notes = append(rec.Notes, d.Notes...)
		if rec.Confidence == 0 || d.Confidence < rec.Confidence {
			rec.Confidence = d.Confidence
		}
	}

	for s := range sources {
		rec.Sources = append(rec.Sources, s)
	}
	sort.Strings(rec.Sources)
	return rec
}

func actionVerb(a model.Action) string {
	if a == model.ActionQuarantine {
		return "quarantined"
	}
	return "rejected"
}
