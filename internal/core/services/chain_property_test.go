package services_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	"github.com/SscSPs/fiscal_journal/internal/core/services"
	"github.com/SscSPs/fiscal_journal/internal/dto"
	"github.com/SscSPs/fiscal_journal/internal/repositories/memory"
)

func buildLedger(cents []int64) (*memory.Store, error) {
	store := memory.NewStore()
	svc := services.NewJournalService(store, store, "REG-PROP")
	ctx := context.Background()
	for _, c := range cents {
		txType := domain.TransactionSale
		if c < 0 {
			txType = domain.TransactionRefund
		}
		if _, err := svc.Append(ctx, dto.AppendEntryRequest{
			TransactionType: txType,
			Amount:          decimal.New(c, -2),
			VATAmount:       decimal.New(c/6, -2),
			PaymentMethod:   "cash",
		}); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// TestHashChainProperties checks the shape of every chain the journal produces.
func TestHashChainProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	amounts := gen.SliceOf(gen.Int64Range(-500000, 500000))

	properties.Property("hashes are 64 lowercase hex and link to their predecessor", prop.ForAll(
		func(cents []int64) bool {
			store, err := buildLedger(cents)
			if err != nil {
				return false
			}
			entries, err := store.ListEntries(context.Background(), 0, 0)
			if err != nil || len(entries) != len(cents) {
				return false
			}
			prev := domain.SentinelHash
			for i, e := range entries {
				if e.SequenceNumber != int64(i+1) || e.PreviousHash != prev || !domain.IsDigest(e.CurrentHash) {
					return false
				}
				if i > 0 && e.PreviousHash == domain.SentinelHash {
					return false
				}
				prev = e.CurrentHash
			}
			return true
		},
		amounts,
	))

	properties.Property("an untouched chain always verifies", prop.ForAll(
		func(cents []int64) bool {
			store, err := buildLedger(cents)
			if err != nil {
				return false
			}
			report, err := services.NewIntegrityService(store, store).Verify(context.Background())
			return err == nil && report.IsValid && report.EntriesChecked == int64(len(cents))
		},
		amounts,
	))

	properties.Property("changing one amount yields exactly one hash mismatch", prop.ForAll(
		func(cents []int64, pick int) bool {
			store, err := buildLedger(cents)
			if err != nil {
				return false
			}
			target := int64(pick%len(cents)) + 1
			reader := &tamperingReader{
				JournalReader: store,
				sequence:      target,
				tamper: func(e *domain.JournalEntry) {
					e.Amount = e.Amount.Add(decimal.New(1, -2))
				},
			}
			report, err := services.NewIntegrityService(reader, store).Verify(context.Background())
			if err != nil || report.IsValid || len(report.Violations) != 1 {
				return false
			}
			v := report.Violations[0]
			return v.Kind == domain.ViolationHashMismatch && v.SequenceNumber == target
		},
		gen.SliceOfN(8, gen.Int64Range(1, 100000)),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
