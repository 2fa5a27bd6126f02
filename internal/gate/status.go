package gate

import "github.com/sells-group/triangulate/internal/model"

// Promote derives the row status from the gate decisions. Rows marked
// Duplicate or Do Not Contact keep that status. A row is Verified only
// when every required field has an Accept decision; a required field that
// was not accepted, or is empty after the run, makes it Needs Review. A
// row with no decisions and nothing missing keeps its pre-run status.
func Promote(before model.Organisation, after model.Organisation, decisions []model.QualityDecision, required []model.Field) model.Status {
	switch before.Status {
	case model.StatusDuplicate, model.StatusDoNotContact:
		return before.Status
	}

	byField := make(map[model.Field]model.QualityDecision, len(decisions))
	for _, d := range decisions {
		byField[d.Field] = d
	}

	allAccepted := len(required) > 0
	for _, f := range required {
		d, decided := byField[f]
		if decided && d.Action != model.ActionAccept {
			return model.StatusNeedsReview
		}
		if after.Get(f) == "" {
			return model.StatusNeedsReview
		}
		if !decided {
			allAccepted = false
		}
	}

	if allAccepted {
		return model.StatusVerified
	}
	if len(decisions) == 0 && before.Status != "" {
		return before.Status
	}
	return model.StatusCandidate
}

// RequiredFields parses configured field names, skipping unknown ones.
func RequiredFields(names []string) []model.Field {
	var out []model.Field
	for _, n := range names {
		if f, ok := model.ParseField(n); ok {
			out = append(out, f)
		}
	}
	return out
}
