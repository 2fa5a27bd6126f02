package validate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/normalize"
)

func fuzzedEngine(perSource, official, capped, mismatch, title int) *Engine {
	s := config.DefaultEnrichment()
	s.OfficialDomains = []string{"cipc.gov.za"}
	s.Weights.CorroborationPerSource = perSource
	s.Weights.CorroborationOfficial = official
	s.Weights.CorroborationCap = capped
	s.Weights.EmailDomainMismatch = mismatch
	s.Weights.WebsiteEmailMismatch = mismatch
	s.Weights.TitleMissingMarker = title
	s.Weights.Rebrand = title
	return NewEngine(s, normalize.New(s))
}

func supporters(n int) []string {
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	return names[:n]
}

func TestProperty_ConfidenceBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("final confidence is always within [0,100]", prop.ForAll(
		func(base, perSource, official, mismatch, title, n int) bool {
			e := fuzzedEngine(perSource, official, 1000, mismatch, title)
			org := model.Organisation{Website: "https://old.example.org", Email: "x@elsewhere.org"}
			scores := e.Validate(org, []model.FieldEvidence{
				evidence(model.FieldPhone, "0821234567", base, supporters(n)...),
				evidence(model.FieldEmail, "jo@gmail.com", base, supporters(n)...),
				evidence(model.FieldWebsite, "https://new.example.com", base, supporters(n)...),
				evidence(model.FieldContactName, "Jane", base, supporters(n)...),
			})
			for _, s := range scores {
				if s.Final < 0 || s.Final > 100 || s.Base < 0 || s.Base > 100 {
					return false
				}
			}
			return len(scores) == 4
		},
		gen.IntRange(-500, 500),
		gen.IntRange(-200, 200),
		gen.IntRange(-200, 200),
		gen.IntRange(-200, 200),
		gen.IntRange(-200, 200),
		gen.IntRange(1, 7),
	))

	properties.TestingRun(t)
}

func TestProperty_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	e := testEngine()
	properties.Property("validation is a pure function of its inputs", prop.ForAll(
		func(base int, title, email string) bool {
			org := model.Organisation{Website: "https://acme.co.za", ContactTitle: title}
			ev := []model.FieldEvidence{
				evidence(model.FieldEmail, email, base, "a", "b"),
				evidence(model.FieldContactName, "Jane", base),
			}
			first := e.Validate(org, ev)
			second := e.Validate(org, ev)
			for f, s := range first {
				if second[f].Final != s.Final || second[f].Hard != s.Hard || second[f].Inconsistent != s.Inconsistent {
					return false
				}
			}
			return len(first) == len(second)
		},
		gen.IntRange(0, 100),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestProperty_CorroborationMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	e := testEngine()
	properties.Property("another agreeing connector never lowers confidence", prop.ForAll(
		func(base, n int) bool {
			fewer := e.Validate(model.Organisation{}, []model.FieldEvidence{evidence(model.FieldPhone, "0821234567", base, supporters(n)...)})
			more := e.Validate(model.Organisation{}, []model.FieldEvidence{evidence(model.FieldPhone, "0821234567", base, supporters(n+1)...)})
			return more[model.FieldPhone].Final >= fewer[model.FieldPhone].Final
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
