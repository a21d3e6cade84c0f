package sqlite

import (
	"context"
	"fmt"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
)

// ListIntegrityExceptions returns exceptions ordered by sequence number.
func (s *Store) ListIntegrityExceptions(ctx context.Context) ([]domain.IntegrityException, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sequence_number, reason, remediation_entry_id, created_at
		FROM journal_integrity_exceptions ORDER BY sequence_number`)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list integrity exceptions", err)
	}
	defer rows.Close()

	var out []domain.IntegrityException
	for rows.Next() {
		var (
			ex        domain.IntegrityException
			createdAt string
		)
		if err := rows.Scan(&ex.SequenceNumber, &ex.Reason, &ex.RemediationEntryID, &createdAt); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan integrity exception", err)
		}
		if ex.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, apperrors.NewAppError(500, "failed to parse integrity exception", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to read integrity exceptions", err)
	}
	return out, nil
}

// InsertIntegrityException stores an exception, one per sequence number.
func (s *Store) InsertIntegrityException(ctx context.Context, ex domain.IntegrityException) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO journal_integrity_exceptions
		(sequence_number, reason, remediation_entry_id, created_at) VALUES (?, ?, ?, ?)`,
		ex.SequenceNumber, ex.Reason, ex.RemediationEntryID, formatTime(ex.CreatedAt))
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("integrity exception %d", ex.SequenceNumber))
	}
	return nil
}
