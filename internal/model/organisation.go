package model

import "strings"

// Field identifies an enrichable column of an organisation row.
type Field string

const (
	FieldWebsite      Field = "website"
	FieldContactName  Field = "contact_name"
	FieldContactTitle Field = "contact_title"
	FieldPhone        Field = "phone"
	FieldEmail        Field = "email"
)

// AllFields lists every enrichable field in a stable order.
var AllFields = []Field{FieldWebsite, FieldContactName, FieldContactTitle, FieldPhone, FieldEmail}

// ParseField maps a column or payload key onto a known Field.
func ParseField(s string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFields {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// Status is the row-level verification status.
type Status string

const (
	StatusVerified     Status = "Verified"
	StatusCandidate    Status = "Candidate"
	StatusNeedsReview  Status = "Needs Review"
	StatusDuplicate    Status = "Duplicate"
	StatusDoNotContact Status = "Do Not Contact"
)

// ParseStatus accepts the documented status values, case-insensitively.
// Unknown or empty input yields StatusCandidate.
func ParseStatus(s string) Status {
	for _, st := range []Status{StatusVerified, StatusCandidate, StatusNeedsReview, StatusDuplicate, StatusDoNotContact} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st
		}
	}
	return StatusCandidate
}

// Organisation is one row of the dataset being enriched.
type Organisation struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Province     string `json:"province,omitempty"`
	Website      string `json:"website,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactTitle string `json:"contact_title,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Status       Status `json:"status,omitempty"`
	Confidence   int    `json:"confidence"`

	// KnownSources are evidence URLs already recorded against the row
	// before this run. Citing only these is not fresh evidence.
	KnownSources []string `json:"known_sources,omitempty"`
}

// Get returns the current value of f.
func (o Organisation) Get(f Field) string {
	switch f {
	case FieldWebsite:
		return o.Website
	case FieldContactName:
		return o.ContactName
	case FieldContactTitle:
		return o.ContactTitle
	case FieldPhone:
		return o.Phone
	case FieldEmail:
		return o.Email
	}
	return ""
}

// Set overwrites the value of f.
func (o *Organisation) Set(f Field, v string) {
	switch f {
	case FieldWebsite:
		o.Website = v
	case FieldContactName:
		o.ContactName = v
	case FieldContactTitle:
		o.ContactTitle = v
	case FieldPhone:
		o.Phone = v
	case FieldEmail:
		o.Email = v
	}
}

// Clone returns a deep copy of the row.
func (o Organisation) Clone() Organisation {
	c := o
	if o.KnownSources != nil {
		c.KnownSources = append([]string(nil), o.KnownSources...)
	}
	return c
}
