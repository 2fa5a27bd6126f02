// Package connector defines the research connector contract and resolves
// the trust-ordered connector chain used for each run.
package connector

import (
	"context"

	"github.com/sells-group/triangulate/internal/model"
)

// Request identifies the organisation a connector is asked about.
type Request struct {
	OrganisationID string
	Name           string
	Province       string
	Website        string
}

// RequestFor builds a lookup request from a dataset row.
func RequestFor(org model.Organisation) Request {
	return Request{
		OrganisationID: org.ID,
		Name:           org.Name,
		Province:       org.Province,
		Website:        org.Website,
	}
}

// Finding is what one connector knows about one organisation. A connector
// with nothing to say returns an empty Finding, not an error.
type Finding struct {
	Candidates []model.FieldCandidate `json:"candidates" yaml:"candidates"`

	// Official is set when the connector itself is a regulator or
	// government registry.
	Official bool `json:"official" yaml:"official"`
}

// Empty reports whether the finding carries no candidates.
func (f *Finding) Empty() bool {
	return f == nil || len(f.Candidates) == 0
}

// Connector retrieves evidence about an organisation. Implementations
// must honour ctx cancellation and return an error only for failures
// such as timeouts, transport errors or malformed payloads.
type Connector interface {
	Name() string
	Lookup(ctx context.Context, req Request) (*Finding, error)
}
