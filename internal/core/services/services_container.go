package services

import (
	"fmt"

	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fiscal_journal/internal/core/ports/services"
	"github.com/SscSPs/fiscal_journal/internal/platform/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies.
// metrics may be nil, in which case the global meter provider is used.
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, metrics *Metrics) (*portssvc.ServiceContainer, error) {
	container := &portssvc.ServiceContainer{}

	periods, err := NewPeriodCalculator(cfg.ClosureTime, cfg.ClosureLocation)
	if err != nil {
		return nil, err
	}
	container.Periods = periods

	policy, err := ParseInvalidOrderPolicy(cfg.InvalidOrderPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid order policy: %w", err)
	}

	container.Journal = NewJournalService(repos.JournalRepo, repos.OrderRepo, cfg.RegisterID,
		WithJournalMetrics(metrics))

	container.Integrity = NewIntegrityService(repos.JournalRepo, repos.IntegrityRepo,
		WithIntegrityMetrics(metrics))

	// Sealed bulletins are mirrored into the ledger through the journal service.
	container.Closure = NewClosureService(repos.ClosureRepo, repos.OrderRepo, repos.JournalRepo, periods,
		WithClosureLedger(container.Journal),
		WithDefaultVATRate(cfg.DefaultVATRate),
		WithInvalidOrderPolicy(policy),
		WithClosureMetrics(metrics),
	)

	return container, nil
}
