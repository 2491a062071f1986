package repository

import (
	"context"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
)

type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	Update(ctx context.Context, t *domain.Transaction) error
	List(ctx context.Context, filter *domain.TransactionFilter) ([]*domain.Transaction, int64, error)
}

type SettlementRepository interface {
	// CommitSettlement stores the transaction's final state, its settlement
	// and the ledger entries as one unit. Entry balances are filled in.
	CommitSettlement(ctx context.Context, t *domain.Transaction, s *domain.Settlement, entries []*domain.LedgerEntry) error
	// CreateSettled stores a new, already approved transaction together with
	// its settlement and ledger entries as one unit.
	CreateSettled(ctx context.Context, t *domain.Transaction, s *domain.Settlement, entries []*domain.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*domain.Settlement, error)
	// GetByIDForUpdate reads the stored record, never a cached copy. Status
	// transitions are decided from this read.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Settlement, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Settlement, error)
	// Update fails with ErrSettlementClosed when it would move a completed or
	// failed settlement to another status.
	Update(ctx context.Context, s *domain.Settlement) error
	// CommitFailure stores a failed settlement, the failed transaction and the
	// compensating entries as one unit. A settlement that is already completed
	// or failed is rejected with ErrSettlementClosed.
	CommitFailure(ctx context.Context, s *domain.Settlement, t *domain.Transaction, reversal []*domain.LedgerEntry) error
	// CommitReconciliation stores the reconciliation outcome and, when matched,
	// flags the settlement's ledger entries as reconciled.
	CommitReconciliation(ctx context.Context, s *domain.Settlement) error
}

type LedgerRepository interface {
	ListBySettlement(ctx context.Context, settlementID string) ([]*domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error)
	GetBalance(ctx context.Context, accountID string) (*domain.AccountBalance, error)
}

// Repositories bundles the stores the usecases depend on.
type Repositories struct {
	Transactions TransactionRepository
	Settlements  SettlementRepository
	Ledger       LedgerRepository
}
