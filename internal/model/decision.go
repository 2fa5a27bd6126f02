package model

import "time"

// Action is the terminal outcome of the quality gate for one field.
type Action string

const (
	ActionAccept     Action = "Accept"
	ActionReject     Action = "Reject"
	ActionQuarantine Action = "Quarantine"
)

// Reason is the closed taxonomy of non-accept outcomes.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonFormatInvalid           Reason = "FormatInvalid"
	ReasonInsufficientSources     Reason = "InsufficientSources"
	ReasonNoOfficialSource        Reason = "NoOfficialSource"
	ReasonStaleEvidence           Reason = "StaleEvidence"
	ReasonLowConfidence           Reason = "LowConfidence"
	ReasonUnresolvedInconsistency Reason = "UnresolvedInconsistency"
)

// Reasons lists every reason a non-accept decision may carry.
var Reasons = []Reason{
	ReasonFormatInvalid,
	ReasonInsufficientSources,
	ReasonNoOfficialSource,
	ReasonStaleEvidence,
	ReasonLowConfidence,
	ReasonUnresolvedInconsistency,
}

// ConfidenceDelta records how a final confidence was derived.
type ConfidenceDelta struct {
	Field      Field `json:"field"`
	Base       int   `json:"base"`
	Adjustment int   `json:"adjustment"`
	Final      int   `json:"final"`
}

// QualityDecision is the gate outcome for one proposed field change.
type QualityDecision struct {
	Field         Field    `json:"field"`
	Action        Action   `json:"action"`
	Reason        Reason   `json:"reason,omitempty"`
	Detail        string   `json:"detail,omitempty"`
	PreviousValue string   `json:"previous_value"`
	ProposedValue string   `json:"proposed_value"`
	Confidence    int      `json:"confidence"`
	Sources       []string `json:"sources,omitempty"`
	Notes         []string `json:"notes,omitempty"`
	Remediation   string   `json:"remediation,omitempty"`
}

// RollbackPlan lists every non-accepted change of a row with its pre-run
// value. It exists only when at least one decision is not Accept.
type RollbackPlan struct {
	RowID       string            `json:"row_id"`
	Decisions   []QualityDecision `json:"decisions"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// EvidenceRecord is the publication unit handed to the evidence sink.
type EvidenceRecord struct {
	ID           string            `json:"id"`
	RunID        string            `json:"run_id"`
	RowID        string            `json:"row_id"`
	Organisation string            `json:"organisation"`
	Changes      map[string]string `json:"changes"`
	Sources      []string          `json:"sources"`
	Notes        []string          `json:"notes,omitempty"`
	Confidence   int               `json:"confidence"`
	Status       Status            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
}
