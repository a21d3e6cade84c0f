package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SentinelHash is the previous_hash of the first journal entry.
// It is 68 characters long, unlike a real 64-character digest. Existing chains
// were sealed with this exact value, so it must never change.
const SentinelHash = "00000000000000000000000000000000000000000000000000000000000000000000"

// DigestLength is the length of a hex-encoded SHA-256 digest.
const DigestLength = 64

const (
	fieldSeparator  = "|"
	nullField       = "null"
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// FormatTimestamp renders t the way it enters hash computations:
// UTC ISO-8601 with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatAmount renders a monetary amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CanonicalFields joins the hashed fields of the entry with "|".
func (e JournalEntry) CanonicalFields() string {
	orderID := nullField
	if e.OrderID != nil {
		orderID = strconv.FormatInt(*e.OrderID, 10)
	}
	return strings.Join([]string{
		strconv.FormatInt(e.SequenceNumber, 10),
		string(e.TransactionType),
		orderID,
		FormatAmount(e.Amount),
		FormatAmount(e.VATAmount),
		e.PaymentMethod,
		FormatTimestamp(e.Timestamp),
		e.RegisterID,
	}, fieldSeparator)
}

// ComputeEntryHash returns SHA256(previousHash + "|" + canonicalFields) for e.
// The entry's own PreviousHash field is ignored so callers can verify the
// stored value against an independently tracked predecessor.
func ComputeEntryHash(previousHash string, e JournalEntry) string {
	return sha256Hex(previousHash + fieldSeparator + e.CanonicalFields())
}

// IsDigest reports whether s looks like a computed hash: 64 lowercase hex characters.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
