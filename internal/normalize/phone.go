package normalize

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
)

// PhoneNormalizer produces E.164 numbers valid in one region's numbering
// plan.
type PhoneNormalizer struct {
	region string
	trunk  string
}

// NewPhoneNormalizer creates a normalizer for a CLDR region code such as
// "ZA".
func NewPhoneNormalizer(region string) *PhoneNormalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	return &PhoneNormalizer{
		region: region,
		trunk:  phonenumbers.GetNddPrefixForRegion(region, true),
	}
}

// Normalize converts raw to E.164. Accepted inputs are the national trunk
// form ("082 123 4567"), the international form with "+" or an IDD
// prefix, and the bare country-code form. Vanity letters, numbers outside
// the region and national numbers without the trunk prefix are errors.
func (p *PhoneNormalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", eris.New("phone: empty")
	}
	if strings.ContainsFunc(s, unicode.IsLetter) {
		return "", eris.Errorf("phone: %q contains letters", raw)
	}

	num, err := phonenumbers.ParseAndKeepRawInput(s, p.region)
	if err != nil {
		return "", eris.Wrapf(err, "phone: parse %q", raw)
	}
	if num.GetCountryCodeSource() == phonenumbers.PhoneNumber_FROM_DEFAULT_COUNTRY &&
		p.trunk != "" && !strings.HasPrefix(phonenumbers.NormalizeDigitsOnly(s), p.trunk) {
		return "", eris.Errorf("phone: %q has no trunk prefix or country code", raw)
	}
	if !phonenumbers.IsValidNumberForRegion(num, p.region) {
		return "", eris.Errorf("phone: %q is not a valid %s number", raw, p.region)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
