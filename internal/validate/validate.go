// Package validate checks aggregated evidence for internal consistency and
// turns the checks into signed confidence adjustments. Everything here is
// a pure function of the evidence and the row's existing values.
package validate

import (
	"fmt"
	"strings"

	"github.com/sells-group/triangulate/internal/aggregate"
	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
)

// Check names recorded on ValidationOutcome.Check.
const (
	CheckPhoneFormat       = "phone_format"
	CheckEmailFormat       = "email_format"
	CheckDomainAlignment   = "domain_alignment"
	CheckWebsiteEmail      = "website_email_alignment"
	CheckTitlePlausibility = "title_plausibility"
	CheckCorroboration     = "corroboration"
	CheckRebrand           = "rebrand"
	CheckContested         = "contested_value"
)

// Score is the validated confidence of one field's evidence.
type Score struct {
	Field      model.Field               `json:"field"`
	Base       int                       `json:"base"`
	Adjustment int                       `json:"adjustment"`
	Final      int                       `json:"final"`
	Outcomes   []model.ValidationOutcome `json:"outcomes"`

	// Hard is set when a format check failed.
	Hard bool `json:"hard"`

	// Inconsistent is set when a soft check raised an unresolved flag.
	Inconsistent bool `json:"inconsistent"`
}

// Delta returns the confidence derivation of the score.
func (s Score) Delta() model.ConfidenceDelta {
	return model.ConfidenceDelta{Field: s.Field, Base: s.Base, Adjustment: s.Adjustment, Final: s.Final}
}

// Notes returns the reasons of every outcome that moved the score or
// raised a flag.
func (s Score) Notes() []string {
	var notes []string
	for _, o := range s.Outcomes {
		if o.Adjustment != 0 || !o.Consistent {
			notes = append(notes, o.Reason)
		}
	}
	return notes
}

// Engine runs the consistency checks.
type Engine struct {
	weights config.Weights
	norm    *normalize.Normalizer
	markers []string
}

// NewEngine builds an engine from enrichment settings.
func NewEngine(s config.Enrichment, norm *normalize.Normalizer) *Engine {
	e := &Engine{weights: s.Weights, norm: norm}
	for _, m := range s.SeniorityMarkers {
		if f := normalize.Fold(m); f != "" {
			e.markers = append(e.markers, f)
		}
	}
	return e
}

// Validate scores every piece of evidence. The result is keyed by field
// and contains exactly one Score per evidence entry.
func (e *Engine) Validate(org model.Organisation, evidence []model.FieldEvidence) map[model.Field]Score {
	proposed := make(map[model.Field]string, len(evidence))
	for _, ev := range evidence {
		proposed[ev.Field] = ev.Value
	}
	post := func(f model.Field) string {
		if v, ok := proposed[f]; ok {
			return v
		}
		return org.Get(f)
	}

	scores := make(map[model.Field]Score, len(evidence))
	for _, ev := range evidence {
		var outcomes []model.ValidationOutcome
		switch ev.Field {
		case model.FieldPhone:
			outcomes = append(outcomes, e.checkPhone(ev))
		case model.FieldEmail:
			outcomes = append(outcomes, e.checkEmail(org, ev, proposed)...)
			outcomes = append(outcomes, e.checkTitle(ev.Field, post(model.FieldContactTitle))...)
		case model.FieldWebsite:
			outcomes = append(outcomes, e.checkWebsiteEmail(ev, post(model.FieldEmail))...)
			outcomes = append(outcomes, e.checkRebrand(org, ev)...)
		case model.FieldContactName:
			outcomes = append(outcomes, e.checkTitle(ev.Field, post(model.FieldContactTitle))...)
		case model.FieldContactTitle:
			outcomes = append(outcomes, e.checkTitle(ev.Field, ev.Value)...)
		}
		outcomes = append(outcomes, e.checkCorroboration(ev)...)
		if ev.Contested {
			outcomes = append(outcomes, model.ValidationOutcome{
				Field:  ev.Field,
				Check:  CheckContested,
				Reason: fmt.Sprintf("equally trusted connectors disagree: %s proposed %q, dissenting %s", ev.BaseOrigin, ev.Value, strings.Join(ev.Dissenters, ", ")),
			})
		}
		scores[ev.Field] = score(ev, outcomes)
	}
	return scores
}

func score(ev model.FieldEvidence, outcomes []model.ValidationOutcome) Score {
	s := Score{Field: ev.Field, Base: aggregate.Clamp(ev.BaseConfidence), Outcomes: outcomes}
	for _, o := range outcomes {
		s.Adjustment += o.Adjustment
		if o.Hard {
			s.Hard = true
		} else if !o.Consistent {
			s.Inconsistent = true
		}
	}
	s.Final = aggregate.Clamp(s.Base + s.Adjustment)
	return s
}

func (e *Engine) checkPhone(ev model.FieldEvidence) model.ValidationOutcome {
	e164, err := e.norm.Phones.Normalize(ev.Value)
	if err != nil {
		return model.ValidationOutcome{
			Field:  ev.Field,
			Check:  CheckPhoneFormat,
			Hard:   true,
			Reason: err.Error(),
		}
	}
	return model.ValidationOutcome{
		Field:      ev.Field,
		Check:      CheckPhoneFormat,
		Consistent: true,
		Reason:     "normalized to " + e164,
	}
}

// checkEmail validates the address and requires its domain to sit within
// a proposed or existing website domain. Either failure is hard.
func (e *Engine) checkEmail(org model.Organisation, ev model.FieldEvidence, proposed map[model.Field]string) []model.ValidationOutcome {
	addr, err := normalize.Email(ev.Value)
	if err != nil {
		return []model.ValidationOutcome{{
			Field:  ev.Field,
			Check:  CheckEmailFormat,
			Hard:   true,
			Reason: err.Error(),
		}}
	}

	domain := normalize.EmailDomain(addr)
	var sites []string
	for _, w := range []string{proposed[model.FieldWebsite], org.Website} {
		if h := normalize.Host(w); h != "" {
			sites = append(sites, h)
		}
	}
	if len(sites) == 0 {
		return []model.ValidationOutcome{{
			Field:      ev.Field,
			Check:      CheckDomainAlignment,
			Hard:       true,
			Adjustment: e.weights.EmailDomainMismatch,
			Reason:     fmt.Sprintf("email domain %s cannot be aligned: no website recorded or proposed", domain),
		}}
	}
	for _, site := range sites {
		if normalize.WithinDomain(domain, site) {
			return []model.ValidationOutcome{{
				Field:      ev.Field,
				Check:      CheckDomainAlignment,
				Consistent: true,
				Reason:     fmt.Sprintf("email domain %s matches website %s", domain, site),
			}}
		}
	}
	return []model.ValidationOutcome{{
		Field:      ev.Field,
		Check:      CheckDomainAlignment,
		Hard:       true,
		Adjustment: e.weights.EmailDomainMismatch,
		Reason:     fmt.Sprintf("email domain %s does not match website %s", domain, strings.Join(sites, " or ")),
	}}
}

// checkWebsiteEmail flags a proposed website that the row's email does
// not belong to. The email field carries the hard check; here it is soft.
func (e *Engine) checkWebsiteEmail(ev model.FieldEvidence, email string) []model.ValidationOutcome {
	domain := normalize.EmailDomain(email)
	site := normalize.Host(ev.Value)
	if domain == "" || site == "" || normalize.WithinDomain(domain, site) {
		return nil
	}
	return []model.ValidationOutcome{{
		Field:      ev.Field,
		Check:      CheckWebsiteEmail,
		Adjustment: e.weights.WebsiteEmailMismatch,
		Reason:     fmt.Sprintf("contact email domain %s does not match proposed website %s", domain, site),
	}}
}

func (e *Engine) checkTitle(f model.Field, title string) []model.ValidationOutcome {
	folded := " " + normalize.Fold(title) + " "
	for _, m := range e.markers {
		if strings.Contains(folded, " "+m+" ") {
			return nil
		}
	}
	reason := "contact title unknown"
	if strings.TrimSpace(title) != "" {
		reason = fmt.Sprintf("contact title %q has no seniority marker", title)
	}
	return []model.ValidationOutcome{{
		Field:      f,
		Check:      CheckTitlePlausibility,
		Consistent: true,
		Adjustment: e.weights.TitleMissingMarker,
		Reason:     reason,
	}}
}

// checkCorroboration rewards independent connectors agreeing with the
// base value, with an extra step when a non-base supporter cites an
// official source.
func (e *Engine) checkCorroboration(ev model.FieldEvidence) []model.ValidationOutcome {
	extra := len(ev.Supporters) - 1
	if extra <= 0 {
		return nil
	}
	bonus := extra * e.weights.CorroborationPerSource
	if ev.OfficialCorroboration {
		bonus += e.weights.CorroborationOfficial
	}
	if e.weights.CorroborationCap > 0 && bonus > e.weights.CorroborationCap {
		bonus = e.weights.CorroborationCap
	}
	if bonus <= 0 {
		return nil
	}
	return []model.ValidationOutcome{{
		Field:      ev.Field,
		Check:      CheckCorroboration,
		Consistent: true,
		Adjustment: bonus,
		Reason:     fmt.Sprintf("%d connectors agree: %s", len(ev.Supporters), strings.Join(ev.Supporters, ", ")),
	}}
}

// checkRebrand flags a proposed website on a different domain than the
// recorded one so an analyst can confirm it is a rename and not an error
// or takeover.
func (e *Engine) checkRebrand(org model.Organisation, ev model.FieldEvidence) []model.ValidationOutcome {
	old := normalize.Host(org.Website)
	proposed := normalize.Host(ev.Value)
	if old == "" || proposed == "" || normalize.WithinDomain(proposed, old) || normalize.WithinDomain(old, proposed) {
		return nil
	}
	return []model.ValidationOutcome{{
		Field:      ev.Field,
		Check:      CheckRebrand,
		Adjustment: e.weights.Rebrand,
		Reason:     fmt.Sprintf("website domain changes from %s to %s: confirm rebrand, not error or takeover", old, proposed),
	}}
}
