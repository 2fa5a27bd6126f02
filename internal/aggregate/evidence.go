package aggregate

import (
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
)

// Resolve picks the winning value for every field whose evidence proposes
// a change to org, in model.AllFields order. The winner is the proposal
// of the highest-trust connector; its sources and official flag are the
// union over every connector agreeing on the same normalized value.
// Fields whose winner equals the current value are not changes and are
// omitted.
func Resolve(norm *normalize.Normalizer, org model.Organisation, finding *model.AggregatedFinding) []model.FieldEvidence {
	if finding == nil {
		return nil
	}
	stale := staleness(norm, org)

	var out []model.FieldEvidence
	for _, f := range model.AllFields {
		cands := finding.Candidates[f]
		if len(cands) == 0 {
			continue
		}
		ev := resolveField(norm, f, cands, stale)
		if ev.Normalized == norm.Value(f, org.Get(f)) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// resolveField expects cands in trust order, as Aggregate produces them.
func resolveField(norm *normalize.Normalizer, f model.Field, cands []model.FieldCandidate, stale func(string) bool) model.FieldEvidence {
	base := cands[0]
	for _, c := range cands[1:] {
		if c.TrustRank < base.TrustRank {
			base = c
		}
	}

	ev := model.FieldEvidence{
		Field:          f,
		Value:          base.Value,
		Normalized:     norm.Value(f, base.Value),
		BaseConfidence: base.Confidence,
		BaseOrigin:     base.Origin,
	}

	sources := make(map[string]struct{})
	supporters := make(map[string]bool)
	dissenters := make(map[string]bool)
	for _, c := range cands {
		if norm.Value(f, c.Value) != ev.Normalized {
			if !dissenters[c.Origin] {
				dissenters[c.Origin] = true
				ev.Dissenters = append(ev.Dissenters, c.Origin)
			}
			if c.TrustRank == base.TrustRank {
				ev.Contested = true
			}
			continue
		}
		if !supporters[c.Origin] {
			supporters[c.Origin] = true
			ev.Supporters = append(ev.Supporters, c.Origin)
		}
		for _, u := range c.SourceURLs {
			sources[u] = struct{}{}
		}
		if c.Official {
			ev.Official = true
			if c.Origin != base.Origin {
				ev.OfficialCorroboration = true
			}
		}
	}
	ev.Sources = normalize.SortedSet(sources)

	for _, u := range ev.Sources {
		if !stale(u) {
			ev.Fresh = true
			break
		}
	}
	return ev
}

// staleness returns a predicate reporting whether a normalized source URL
// is already part of the row's recorded evidence: its host lies within the
// existing website's domain, or it is one of the row's known sources.
func staleness(norm *normalize.Normalizer, org model.Organisation) func(string) bool {
	domain := normalize.Host(org.Website)
	known := make(map[string]bool, len(org.KnownSources))
	for _, u := range norm.URLs.NormalizeAll(org.KnownSources) {
		known[u] = true
	}
	return func(u string) bool {
		if known[u] {
			return true
		}
		return domain != "" && normalize.WithinDomain(normalize.Host(u), domain)
	}
}
