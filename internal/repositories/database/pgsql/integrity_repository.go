package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

type PgxIntegrityRepository struct {
	BaseRepository
}

func newPgxIntegrityRepository(pool *pgxpool.Pool) *PgxIntegrityRepository {
	return &PgxIntegrityRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.IntegrityExceptionRepository = (*PgxIntegrityRepository)(nil)

// ListIntegrityExceptions returns exceptions ordered by sequence number.
func (r *PgxIntegrityRepository) ListIntegrityExceptions(ctx context.Context) ([]domain.IntegrityException, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT sequence_number, reason, remediation_entry_id, created_at
		FROM journal_integrity_exceptions
		ORDER BY sequence_number`)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list integrity exceptions", err)
	}
	defer rows.Close()

	var out []domain.IntegrityException
	for rows.Next() {
		var ex domain.IntegrityException
		if err := rows.Scan(&ex.SequenceNumber, &ex.Reason, &ex.RemediationEntryID, &ex.CreatedAt); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan integrity exception", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "failed to read integrity exceptions", err)
	}
	return out, nil
}

// InsertIntegrityException stores an exception, one per sequence number.
func (r *PgxIntegrityRepository) InsertIntegrityException(ctx context.Context, ex domain.IntegrityException) error {
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO journal_integrity_exceptions (sequence_number, reason, remediation_entry_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		ex.SequenceNumber, ex.Reason, ex.RemediationEntryID, ex.CreatedAt)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("integrity exception %d", ex.SequenceNumber))
	}
	return nil
}
