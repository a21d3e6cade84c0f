package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a legal journal entry.
type TransactionType string

const (
	TransactionSale       TransactionType = "SALE"
	TransactionRefund     TransactionType = "REFUND"
	TransactionCorrection TransactionType = "CORRECTION"
	TransactionClosure    TransactionType = "CLOSURE"
	TransactionArchive    TransactionType = "ARCHIVE"
)

// IsValid reports whether t is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionSale, TransactionRefund, TransactionCorrection, TransactionClosure, TransactionArchive:
		return true
	}
	return false
}

// Payment methods recorded on entries that move no money through a tender.
const (
	PaymentMethodCorrection = "correction"
	PaymentMethodClosure    = "closure"
	PaymentMethodArchive    = "archive"
)

// CorrectionHashChainIntegrity is the correction_type recorded by the
// remediation entry of a documented hash-chain break.
const CorrectionHashChainIntegrity = "HASH_CHAIN_INTEGRITY"

// JournalEntry is a single immutable record of the legal journal.
type JournalEntry struct {
	SequenceNumber  int64           `json:"sequenceNumber"`
	TransactionType TransactionType `json:"transactionType"`
	OrderID         *int64          `json:"orderID"`   // Nullable reference to the originating order
	Amount          decimal.Decimal `json:"amount"`    // Signed; refunds are negative
	VATAmount       decimal.Decimal `json:"vatAmount"` // Signed; refunds are negative
	PaymentMethod   string          `json:"paymentMethod"`
	TransactionData json.RawMessage `json:"transactionData"` // Canonical JSON payload, not hashed
	PreviousHash    string          `json:"previousHash"`
	CurrentHash     string          `json:"currentHash"`
	Timestamp       time.Time       `json:"timestamp"` // Millisecond precision, UTC
	UserID          *string         `json:"userID"`
	RegisterID      string          `json:"registerID"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CorrectionType returns the correction_type declared in the entry payload,
// or an empty string when the entry is not a correction or declares none.
func (e JournalEntry) CorrectionType() string {
	if e.TransactionType != TransactionCorrection || len(e.TransactionData) == 0 {
		return ""
	}
	var payload struct {
		CorrectionType string `json:"correction_type"`
	}
	if err := json.Unmarshal(e.TransactionData, &payload); err != nil {
		return ""
	}
	return payload.CorrectionType
}

// IsHashChainRemediation reports whether the entry documents the remediation
// of a hash-chain break.
func (e JournalEntry) IsHashChainRemediation() bool {
	return e.CorrectionType() == CorrectionHashChainIntegrity
}
