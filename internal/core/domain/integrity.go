package domain

import (
	"fmt"
	"time"
)

// IntegrityException documents a historical chain break that has been
// remediated by a HASH_CHAIN_INTEGRITY correction entry.
type IntegrityException struct {
	SequenceNumber     int64     `json:"sequenceNumber"`
	Reason             string    `json:"reason"`
	RemediationEntryID int64     `json:"remediationEntryID"` // Sequence number of the correction entry
	CreatedAt          time.Time `json:"createdAt"`
}

// ViolationKind names the check an entry failed.
type ViolationKind string

const (
	ViolationSequenceBreak ViolationKind = "SEQUENCE_BREAK"
	ViolationChainBreak    ViolationKind = "CHAIN_BREAK"
	ViolationHashMismatch  ViolationKind = "HASH_MISMATCH"
)

// Violation is a single integrity failure found by the verifier.
type Violation struct {
	SequenceNumber int64         `json:"sequenceNumber"`
	Position       int64         `json:"position"`
	Kind           ViolationKind `json:"kind"`
	Expected       string        `json:"expected"`
	Actual         string        `json:"actual"`
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationSequenceBreak:
		return fmt.Sprintf("sequence break at position %d: expected sequence %s, found %s", v.Position, v.Expected, v.Actual)
	case ViolationChainBreak:
		return fmt.Sprintf("hash chain break at sequence %d: expected previous_hash %s, found %s", v.SequenceNumber, v.Expected, v.Actual)
	default:
		return fmt.Sprintf("hash mismatch at sequence %d: expected current_hash %s, found %s", v.SequenceNumber, v.Expected, v.Actual)
	}
}

// IntegrityReport is the outcome of a full chain verification.
type IntegrityReport struct {
	IsValid         bool        `json:"isValid"`
	Errors          []string    `json:"errors"`
	Violations      []Violation `json:"violations"`
	Notes           []string    `json:"notes"`
	EntriesChecked  int64       `json:"entriesChecked"`
	ToleratedBreaks int64       `json:"toleratedBreaks"`
	VerifiedAt      time.Time   `json:"verifiedAt"`
}
