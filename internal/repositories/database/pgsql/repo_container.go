package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		JournalRepo:   newPgxJournalRepository(dbPool),
		ClosureRepo:   newPgxClosureRepository(dbPool),
		OrderRepo:     newPgxOrderRepository(dbPool),
		IntegrityRepo: newPgxIntegrityRepository(dbPool),
	}
}
