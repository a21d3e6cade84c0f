package dto

import (
	"encoding/json"
	"time"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AppendEntryRequest defines the raw append operation of the legal journal.
type AppendEntryRequest struct {
	TransactionType domain.TransactionType `json:"transactionType" binding:"required,oneof=SALE REFUND CORRECTION CLOSURE ARCHIVE"`
	OrderID         *int64                 `json:"orderID" binding:"omitempty,gt=0"`
	Amount          decimal.Decimal        `json:"amount"`
	VATAmount       decimal.Decimal        `json:"vatAmount"`
	PaymentMethod   string                 `json:"paymentMethod" binding:"max=64"`
	Payload         any                    `json:"payload"`
	UserID          *string                `json:"-"` // Set from the authenticated subject
}

// LogSaleRequest journals a settled order.
type LogSaleRequest struct {
	OrderID int64 `json:"orderID" binding:"required,gt=0"`
}

// LogRefundRequest journals a refund. Amounts are given as positive values.
type LogRefundRequest struct {
	OrderID       int64           `json:"orderID" binding:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	VATAmount     decimal.Decimal `json:"vatAmount"`
	PaymentMethod string          `json:"paymentMethod" binding:"required,max=64"`
	Reason        string          `json:"reason" binding:"max=512"`
}

// LogCorrectionRequest journals a correction not tied to an order.
type LogCorrectionRequest struct {
	CorrectionType string          `json:"correctionType" binding:"required,max=64"`
	Amount         decimal.Decimal `json:"amount"`
	VATAmount      decimal.Decimal `json:"vatAmount"`
	Details        map[string]any  `json:"details"`
}

// LogArchiveRequest journals an archive marker.
type LogArchiveRequest struct {
	Reason  string         `json:"reason" binding:"required,max=512"`
	Details map[string]any `json:"details"`
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListEntriesParams defines query parameters for listing journal entries.
type ListEntriesParams struct {
	AfterSequence int64 `form:"after" binding:"omitempty,gte=0"`
	Limit         int   `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// EffectiveLimit clamps Limit to (0, MaxListLimit], defaulting to DefaultListLimit.
func (p ListEntriesParams) EffectiveLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultListLimit
	case p.Limit > MaxListLimit:
		return MaxListLimit
	}
	return p.Limit
}

// JournalEntryResponse defines the data returned for a journal entry.
type JournalEntryResponse struct {
	SequenceNumber  int64           `json:"sequenceNumber"`
	TransactionType string          `json:"transactionType"`
	OrderID         *int64          `json:"orderID"`
	Amount          string          `json:"amount"`
	VATAmount       string          `json:"vatAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	TransactionData json.RawMessage `json:"transactionData"`
	PreviousHash    string          `json:"previousHash"`
	CurrentHash     string          `json:"currentHash"`
	Timestamp       string          `json:"timestamp"`
	UserID          *string         `json:"userID,omitempty"`
	RegisterID      string          `json:"registerID"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ListEntriesResponse wraps a page of journal entries.
type ListEntriesResponse struct {
	Entries      []JournalEntryResponse `json:"entries"`
	NextSequence *int64                 `json:"nextSequence,omitempty"` // Pass as "after" to fetch the next page
}

// ToJournalEntryResponse converts a domain.JournalEntry to its DTO.
// Amounts and timestamp are rendered exactly as they enter the hash.
func ToJournalEntryResponse(e *domain.JournalEntry) JournalEntryResponse {
	return JournalEntryResponse{
		SequenceNumber:  e.SequenceNumber,
		TransactionType: string(e.TransactionType),
		OrderID:         e.OrderID,
		Amount:          domain.FormatAmount(e.Amount),
		VATAmount:       domain.FormatAmount(e.VATAmount),
		PaymentMethod:   e.PaymentMethod,
		TransactionData: e.TransactionData,
		PreviousHash:    e.PreviousHash,
		CurrentHash:     e.CurrentHash,
		Timestamp:       domain.FormatTimestamp(e.Timestamp),
		UserID:          e.UserID,
		RegisterID:      e.RegisterID,
		CreatedAt:       e.CreatedAt,
	}
}

// ToListEntriesResponse converts entries into a page, setting NextSequence
// when the page is full.
func ToListEntriesResponse(entries []domain.JournalEntry, limit int) ListEntriesResponse {
	resp := ListEntriesResponse{Entries: make([]JournalEntryResponse, len(entries))}
	for i := range entries {
		resp.Entries[i] = ToJournalEntryResponse(&entries[i])
	}
	if limit > 0 && len(entries) == limit {
		next := entries[len(entries)-1].SequenceNumber
		resp.NextSequence = &next
	}
	return resp
}

// RegisterExceptionRequest documents a remediated chain break.
type RegisterExceptionRequest struct {
	SequenceNumber     int64  `json:"sequenceNumber" binding:"required,gt=0"`
	Reason             string `json:"reason" binding:"required,max=512"`
	RemediationEntryID int64  `json:"remediationEntryID" binding:"required,gt=0"`
}
