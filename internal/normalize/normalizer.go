package normalize

import (
	"strings"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
)

// Normalizer bundles the per-run normalization settings.
type Normalizer struct {
	URLs     *URLNormalizer
	Phones   *PhoneNormalizer
	Official *OfficialMatcher
}

// New builds a Normalizer from enrichment settings.
func New(s config.Enrichment) *Normalizer {
	return &Normalizer{
		URLs:     NewURLNormalizer(s.TrackingParams),
		Phones:   NewPhoneNormalizer(s.PhoneRegion),
		Official: NewOfficialMatcher(s.OfficialDomains),
	}
}

// Value returns the comparison form of a field value. Two values with the
// same comparison form are the same fact. Values that fail format checks
// fall back to a folded form so they still compare deterministically.
func (n *Normalizer) Value(f model.Field, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	switch f {
	case model.FieldPhone:
		if e164, err := n.Phones.Normalize(v); err == nil {
			return e164
		}
		return "invalid:" + Fold(v)
	case model.FieldEmail:
		return strings.ToLower(v)
	case model.FieldWebsite:
		return Website(v)
	default:
		return Fold(v)
	}
}

// Canonical returns the form a value is written back to the dataset in.
// Only phones are rewritten; other fields keep the proposed text.
func (n *Normalizer) Canonical(f model.Field, v string) string {
	v = strings.TrimSpace(v)
	if f == model.FieldPhone {
		if e164, err := n.Phones.Normalize(v); err == nil {
			return e164
		}
	}
	if f == model.FieldEmail {
		return strings.ToLower(v)
	}
	return v
}
