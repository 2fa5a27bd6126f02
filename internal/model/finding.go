package model

// FieldCandidate is one proposed value for a field, as returned by a
// single connector call. Candidates are treated as immutable values.
type FieldCandidate struct {
	Field      Field    `json:"field"`
	Value      string   `json:"value"`
	Origin     string   `json:"origin"`
	Confidence int      `json:"confidence"`
	SourceURLs []string `json:"source_urls,omitempty"`
	Official   bool     `json:"is_official_source"`

	// TrustRank of the origin connector, stamped by the aggregator.
	TrustRank int `json:"trust_rank"`
}

// ConnectorResult records the outcome of one connector call for a row.
type ConnectorResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// AggregatedFinding is the merged evidence for one row. It is built fresh
// on every run and never persisted.
type AggregatedFinding struct {
	OrganisationID string `json:"organisation_id"`

	// Candidates holds, per field, every non-empty proposal in trust order.
	Candidates map[Field][]FieldCandidate `json:"candidates"`

	// UniqueSources is the sorted set of normalized source URLs.
	UniqueSources     []string          `json:"unique_sources"`
	HasOfficialSource bool              `json:"has_official_source"`
	ConnectorResults  []ConnectorResult `json:"connector_results"`
}

// FieldEvidence is the evidence backing the winning value of one field.
type FieldEvidence struct {
	Field Field `json:"field"`

	// Value is the proposal of the highest-trust connector; Normalized is
	// its comparison form.
	Value      string `json:"value"`
	Normalized string `json:"normalized"`

	// BaseConfidence is taken from the highest-trust connector proposing
	// Value, never averaged.
	BaseConfidence int    `json:"base_confidence"`
	BaseOrigin     string `json:"base_origin"`

	// Supporters are the connectors whose proposal normalizes to Value.
	Supporters []string `json:"supporters"`
	Sources    []string `json:"sources"`
	Official   bool     `json:"official"`
	Fresh      bool     `json:"fresh"`

	// OfficialCorroboration is set when a supporter other than the base
	// connector backs Value with an official source.
	OfficialCorroboration bool `json:"official_corroboration,omitempty"`

	// Dissenters are connectors proposing a different value. Contested is
	// set when a dissenter shares the base connector's trust rank.
	Dissenters []string `json:"dissenters,omitempty"`
	Contested  bool     `json:"contested,omitempty"`
}

// ValidationOutcome is one signed adjustment produced by a consistency check.
type ValidationOutcome struct {
	Field      Field  `json:"field"`
	Check      string `json:"check"`
	Consistent bool   `json:"consistent"`

	// Hard marks a format failure that rejects the field regardless of
	// confidence.
	Hard       bool   `json:"hard,omitempty"`
	Adjustment int    `json:"adjustment"`
	Reason     string `json:"reason"`
}
