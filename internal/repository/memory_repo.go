package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
)

// memoryStore keeps every record behind one lock. Commits validate fully
// before mutating, so a failed commit leaves no partial state.
type memoryStore struct {
	mu sync.RWMutex

	transactions   map[string]*domain.Transaction
	settlements    map[string]*domain.Settlement
	settlementByTx map[string]string
	entries        map[string][]*domain.LedgerEntry
	accountEntries map[string][]*domain.LedgerEntry
	balances       map[string]*domain.AccountBalance
}

// NewMemoryRepositories returns repositories sharing one in-process store.
func NewMemoryRepositories() *Repositories {
	s := &memoryStore{
		transactions:   make(map[string]*domain.Transaction),
		settlements:    make(map[string]*domain.Settlement),
		settlementByTx: make(map[string]string),
		entries:        make(map[string][]*domain.LedgerEntry),
		accountEntries: make(map[string][]*domain.LedgerEntry),
		balances:       make(map[string]*domain.AccountBalance),
	}
	return &Repositories{
		Transactions: &memoryTransactionRepo{s},
		Settlements:  &memorySettlementRepo{s},
		Ledger:       &memoryLedgerRepo{s},
	}
}

type memoryTransactionRepo struct{ s *memoryStore }

func (r *memoryTransactionRepo) Create(_ context.Context, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.transactions[t.ID]; exists {
		return xerrors.ErrDuplicateTransaction
	}
	r.s.transactions[t.ID] = t.Clone()
	return nil
}

func (r *memoryTransactionRepo) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

func (r *memoryTransactionRepo) Update(_ context.Context, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.transactions[t.ID]; !ok {
		return xerrors.ErrTransactionNotFound
	}
	r.s.transactions[t.ID] = t.Clone()
	return nil
}

func (r *memoryTransactionRepo) List(_ context.Context, filter *domain.TransactionFilter) ([]*domain.Transaction, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.Transaction
	for _, t := range r.s.transactions {
		if filter.Matches(t) {
			matched = append(matched, t)
		}
	}
	// newest first, like the SQL store
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[filter.Offset:]
			}
		}
		if filter.Limit > 0 && len(matched) > filter.Limit {
			matched = matched[:filter.Limit]
		}
	}

	out := make([]*domain.Transaction, 0, len(matched))
	for _, t := range matched {
		out = append(out, t.Clone())
	}
	return out, total, nil
}

type memorySettlementRepo struct{ s *memoryStore }

func (r *memorySettlementRepo) CommitSettlement(_ context.Context, t *domain.Transaction, st *domain.Settlement, entries []*domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.transactions[t.ID]; !ok {
		return xerrors.ErrTransactionNotFound
	}
	if _, exists := r.s.settlementByTx[t.ID]; exists {
		return fmt.Errorf("transaction %s: %w", t.ID, xerrors.ErrSettlementExists)
	}
	if err := domain.CheckBalanced(entries); err != nil {
		return err
	}

	r.s.postEntries(entries)
	r.s.transactions[t.ID] = t.Clone()
	r.s.settlements[st.ID] = st.Clone()
	r.s.settlementByTx[t.ID] = st.ID
	return nil
}

func (r *memorySettlementRepo) CreateSettled(_ context.Context, t *domain.Transaction, st *domain.Settlement, entries []*domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.transactions[t.ID]; exists {
		return xerrors.ErrDuplicateTransaction
	}
	if err := domain.CheckBalanced(entries); err != nil {
		return err
	}

	r.s.postEntries(entries)
	r.s.transactions[t.ID] = t.Clone()
	r.s.settlements[st.ID] = st.Clone()
	r.s.settlementByTx[t.ID] = st.ID
	return nil
}

func (r *memorySettlementRepo) GetByID(_ context.Context, id string) (*domain.Settlement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.settlements[id]
	if !ok {
		return nil, xerrors.ErrSettlementNotFound
	}
	return st.Clone(), nil
}

func (r *memorySettlementRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Settlement, error) {
	return r.GetByID(ctx, id)
}

func (r *memorySettlementRepo) GetByTransactionID(_ context.Context, transactionID string) (*domain.Settlement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.settlementByTx[transactionID]
	if !ok {
		return nil, xerrors.ErrSettlementNotFound
	}
	return r.s.settlements[id].Clone(), nil
}

func (r *memorySettlementRepo) Update(_ context.Context, st *domain.Settlement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkTransition(st); err != nil {
		return err
	}
	r.s.settlements[st.ID] = st.Clone()
	return nil
}

func (r *memorySettlementRepo) CommitFailure(_ context.Context, st *domain.Settlement, t *domain.Transaction, reversal []*domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.settlements[st.ID]
	if !ok {
		return xerrors.ErrSettlementNotFound
	}
	if stored.IsTerminal() {
		return fmt.Errorf("settlement %s is %s: %w", stored.ID, stored.Status, xerrors.ErrSettlementClosed)
	}
	if _, ok := r.s.transactions[t.ID]; !ok {
		return xerrors.ErrTransactionNotFound
	}
	if err := domain.CheckBalanced(reversal); err != nil {
		return err
	}

	r.s.postEntries(reversal)
	r.s.settlements[st.ID] = st.Clone()
	r.s.transactions[t.ID] = t.Clone()
	return nil
}

func (r *memorySettlementRepo) CommitReconciliation(_ context.Context, st *domain.Settlement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkTransition(st); err != nil {
		return err
	}
	r.s.settlements[st.ID] = st.Clone()
	if st.ReconciliationStatus == domain.ReconciliationMatched {
		for _, e := range r.s.entries[st.ID] {
			e.Reconciled = true
		}
	}
	return nil
}

// checkTransition rejects writes that would move a completed or failed
// settlement to another status. Callers hold the write lock.
func (s *memoryStore) checkTransition(st *domain.Settlement) error {
	stored, ok := s.settlements[st.ID]
	if !ok {
		return xerrors.ErrSettlementNotFound
	}
	if stored.IsTerminal() && stored.Status != st.Status {
		return fmt.Errorf("settlement %s is %s: %w", stored.ID, stored.Status, xerrors.ErrSettlementClosed)
	}
	return nil
}

// postEntries applies entries in order, computing running balances per
// account. Callers hold the write lock.
func (s *memoryStore) postEntries(entries []*domain.LedgerEntry) {
	for _, e := range entries {
		bal, ok := s.balances[e.AccountID]
		if !ok {
			bal = &domain.AccountBalance{AccountID: e.AccountID, Currency: e.Currency, Balance: decimal.Zero}
			s.balances[e.AccountID] = bal
		}
		bal.Balance = bal.Balance.Add(e.Delta())
		bal.UpdatedAt = time.Now()
		e.Balance = bal.Balance

		stored := *e
		s.entries[e.SettlementID] = append(s.entries[e.SettlementID], &stored)
		s.accountEntries[e.AccountID] = append(s.accountEntries[e.AccountID], &stored)
	}
}

type memoryLedgerRepo struct{ s *memoryStore }

func (r *memoryLedgerRepo) ListBySettlement(_ context.Context, settlementID string) ([]*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return copyEntries(r.s.entries[settlementID]), nil
}

func (r *memoryLedgerRepo) ListByAccount(_ context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return copyEntries(r.s.accountEntries[accountID]), nil
}

func (r *memoryLedgerRepo) GetBalance(_ context.Context, accountID string) (*domain.AccountBalance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bal, ok := r.s.balances[accountID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	c := *bal
	return &c, nil
}

func copyEntries(in []*domain.LedgerEntry) []*domain.LedgerEntry {
	out := make([]*domain.LedgerEntry, 0, len(in))
	for _, e := range in {
		c := *e
		out = append(out, &c)
	}
	return out
}
