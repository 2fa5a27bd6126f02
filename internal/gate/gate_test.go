package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
	"github.com/sells-group/triangulate/internal/validate"
)

func testGate() *Gate {
	s := config.DefaultEnrichment()
	s.OfficialDomains = []string{"cipc.gov.za"}
	return New(s, normalize.New(s))
}

var twoSources = []string{"https://cipc.gov.za/e/1", "https://press.example.com/a"}

func goodEvidence(f model.Field, value string) model.FieldEvidence {
	return model.FieldEvidence{Field: f, Value: value, Sources: twoSources, Official: true, Fresh: true}
}

func TestDecide_Rules(t *testing.T) {
	t.Parallel()

	g := testGate()

	tests := []struct {
		name   string
		ev     model.FieldEvidence
		score  validate.Score
		action model.Action
		reason model.Reason
	}{
		{
			name:   "accept",
			ev:     goodEvidence(model.FieldPhone, "0821234567"),
			score:  validate.Score{Final: 95},
			action: model.ActionAccept,
		},
		{
			name:   "format beats everything",
			ev:     goodEvidence(model.FieldEmail, "jo@gmail.com"),
			score:  validate.Score{Final: 100, Hard: true},
			action: model.ActionReject,
			reason: model.ReasonFormatInvalid,
		},
		{
			name:   "hard failure on a non-format field is not a format reject",
			ev:     model.FieldEvidence{Field: model.FieldWebsite, Value: "https://x.org", Sources: twoSources[:1], Official: true, Fresh: true},
			score:  validate.Score{Final: 100, Hard: true},
			action: model.ActionReject,
			reason: model.ReasonInsufficientSources,
		},
		{
			name:   "one source",
			ev:     model.FieldEvidence{Field: model.FieldPhone, Value: "0821234567", Sources: twoSources[:1], Official: true, Fresh: true},
			score:  validate.Score{Final: 100},
			action: model.ActionReject,
			reason: model.ReasonInsufficientSources,
		},
		{
			name:   "no official",
			ev:     model.FieldEvidence{Field: model.FieldPhone, Value: "0821234567", Sources: twoSources, Fresh: true},
			score:  validate.Score{Final: 100},
			action: model.ActionReject,
			reason: model.ReasonNoOfficialSource,
		},
		{
			name:   "stale",
			ev:     model.FieldEvidence{Field: model.FieldPhone, Value: "0821234567", Sources: twoSources, Official: true},
			score:  validate.Score{Final: 100},
			action: model.ActionReject,
			reason: model.ReasonStaleEvidence,
		},
		{
			name:   "low confidence",
			ev:     goodEvidence(model.FieldWebsite, "https://b-rebrand.org"),
			score:  validate.Score{Final: 60, Inconsistent: true},
			action: model.ActionReject,
			reason: model.ReasonLowConfidence,
		},
		{
			name:   "threshold is inclusive",
			ev:     goodEvidence(model.FieldContactName, "Jane"),
			score:  validate.Score{Final: 70},
			action: model.ActionAccept,
		},
		{
			name:   "inconsistent within band",
			ev:     goodEvidence(model.FieldWebsite, "https://b-rebrand.org"),
			score:  validate.Score{Final: 79, Inconsistent: true},
			action: model.ActionQuarantine,
			reason: model.ReasonUnresolvedInconsistency,
		},
		{
			name:   "inconsistent above band",
			ev:     goodEvidence(model.FieldWebsite, "https://b-rebrand.org"),
			score:  validate.Score{Final: 80, Inconsistent: true},
			action: model.ActionAccept,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := g.Decide("before", tt.ev, tt.score)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, "before", d.PreviousValue)
			assert.Equal(t, tt.score.Final, d.Confidence)
			if tt.action != model.ActionAccept {
				assert.NotEmpty(t, d.Detail)
			}
		})
	}
}

func TestDecide_AcceptCanonicalizesPhone(t *testing.T) {
	t.Parallel()

	d := testGate().Decide("", goodEvidence(model.FieldPhone, "082 123 4567"), validate.Score{Final: 95})
	assert.Equal(t, model.ActionAccept, d.Action)
	assert.Equal(t, "+27821234567", d.ProposedValue)
	assert.Equal(t, twoSources, d.Sources)
}

func TestDecide_FormatRejectCarriesCheckReason(t *testing.T) {
	t.Parallel()

	score := validate.Score{Final: 90, Hard: true, Outcomes: []model.ValidationOutcome{
		{Field: model.FieldEmail, Check: validate.CheckDomainAlignment, Hard: true, Reason: "email domain gmail.com does not match website acme.co.za"},
	}}
	d := testGate().Decide("", goodEvidence(model.FieldEmail, "jo@gmail.com"), score)
	assert.Equal(t, model.ReasonFormatInvalid, d.Reason)
	assert.Contains(t, d.Detail, "gmail.com")
	assert.Equal(t, "jo@gmail.com", d.ProposedValue)
}

func TestDecideAll_UsesPreRunValues(t *testing.T) {
	t.Parallel()

	org := model.Organisation{Website: "http://b.org"}
	ev := []model.FieldEvidence{goodEvidence(model.FieldWebsite, "https://b-rebrand.org")}
	decisions := testGate().DecideAll(org, ev, map[model.Field]validate.Score{model.FieldWebsite: {Final: 60}})

	assert.Len(t, decisions, 1)
	assert.Equal(t, "http://b.org", decisions[0].PreviousValue)
	assert.Equal(t, model.ReasonLowConfidence, decisions[0].Reason)
}
