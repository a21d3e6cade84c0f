package dto

import (
	"time"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// CreateClosureRequest seals the period of the given type containing ReferenceDate.
type CreateClosureRequest struct {
	ClosureType   string    `json:"closureType" binding:"required"`
	ReferenceDate time.Time `json:"referenceDate" binding:"required"`
}

// ListClosuresParams defines query parameters for listing closures.
type ListClosuresParams struct {
	ClosureType string `form:"type"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// VATBucketResponse is one line of the VAT breakdown.
type VATBucketResponse struct {
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
	VAT    string `json:"vat"`
}

// ClosureResponse defines the data returned for a closure bulletin.
type ClosureResponse struct {
	ClosureID               string                       `json:"closureID"`
	ClosureType             string                       `json:"closureType"`
	PeriodStart             time.Time                    `json:"periodStart"`
	PeriodEnd               time.Time                    `json:"periodEnd"`
	TotalTransactions       int64                        `json:"totalTransactions"`
	TotalAmount             string                       `json:"totalAmount"`
	TotalVAT                string                       `json:"totalVAT"`
	VATBreakdown            map[string]VATBucketResponse `json:"vatBreakdown"`
	PaymentMethodsBreakdown map[string]string            `json:"paymentMethodsBreakdown"`
	TipsTotal               string                       `json:"tipsTotal"`
	ChangeTotal             string                       `json:"changeTotal"`
	FirstSequence           int64                        `json:"firstSequence"`
	LastSequence            int64                        `json:"lastSequence"`
	ClosureHash             string                       `json:"closureHash"`
	IsClosed                bool                         `json:"isClosed"`
	ClosedAt                time.Time                    `json:"closedAt"`
	CreatedAt               time.Time                    `json:"createdAt"`
}

// ToClosureResponse converts a domain.ClosureBulletin to its DTO.
func ToClosureResponse(b *domain.ClosureBulletin) ClosureResponse {
	resp := ClosureResponse{
		ClosureID:               b.ClosureID,
		ClosureType:             string(b.ClosureType),
		PeriodStart:             b.PeriodStart,
		PeriodEnd:               b.PeriodEnd,
		TotalTransactions:       b.TotalTransactions,
		TotalAmount:             domain.FormatAmount(b.TotalAmount),
		TotalVAT:                domain.FormatAmount(b.TotalVAT),
		VATBreakdown:            make(map[string]VATBucketResponse, len(b.VATBreakdown)),
		PaymentMethodsBreakdown: make(map[string]string, len(b.PaymentMethodsBreakdown)),
		TipsTotal:               domain.FormatAmount(b.TipsTotal),
		ChangeTotal:             domain.FormatAmount(b.ChangeTotal),
		FirstSequence:           b.FirstSequence,
		LastSequence:            b.LastSequence,
		ClosureHash:             b.ClosureHash,
		IsClosed:                b.IsClosed,
		ClosedAt:                b.ClosedAt,
		CreatedAt:               b.CreatedAt,
	}
	for label, bucket := range b.VATBreakdown {
		resp.VATBreakdown[label] = VATBucketResponse{
			Rate:   bucket.Rate.String(),
			Amount: domain.FormatAmount(bucket.Amount),
			VAT:    domain.FormatAmount(bucket.VAT),
		}
	}
	for method, amount := range b.PaymentMethodsBreakdown {
		resp.PaymentMethodsBreakdown[method] = domain.FormatAmount(amount)
	}
	return resp
}

// ToClosureResponses converts a slice of bulletins.
func ToClosureResponses(bs []domain.ClosureBulletin) []ClosureResponse {
	out := make([]ClosureResponse, len(bs))
	for i := range bs {
		out[i] = ToClosureResponse(&bs[i])
	}
	return out
}
