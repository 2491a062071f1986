package repository

import (
	"context"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"

	"go.uber.org/zap"
)

const (
	settlementNamespace   = "settlement"
	settlementTxNamespace = "settlement:tx"
)

// JSONCache is the slice of shared/utils/cache the settlement cache needs.
type JSONCache interface {
	GetJSON(ctx context.Context, namespace, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	SetJSONIfAbsent(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, namespace, key string) error
}

// cachedSettlementRepo serves settlement reads from redis. Writes overwrite
// the cached copy with the committed record; read misses only fill an empty
// key, so a slow reader cannot put back a copy older than the last write.
// Cache failures degrade to the wrapped store.
type cachedSettlementRepo struct {
	next   SettlementRepository
	cache  JSONCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSettlementRepo(next SettlementRepository, c JSONCache, ttl time.Duration, logger *zap.Logger) SettlementRepository {
	return &cachedSettlementRepo{next: next, cache: c, ttl: ttl, logger: logger}
}

func (r *cachedSettlementRepo) CommitSettlement(ctx context.Context, t *domain.Transaction, s *domain.Settlement, entries []*domain.LedgerEntry) error {
	if err := r.next.CommitSettlement(ctx, t, s, entries); err != nil {
		return err
	}
	r.refresh(ctx, s)
	return nil
}

func (r *cachedSettlementRepo) CreateSettled(ctx context.Context, t *domain.Transaction, s *domain.Settlement, entries []*domain.LedgerEntry) error {
	if err := r.next.CreateSettled(ctx, t, s, entries); err != nil {
		return err
	}
	r.refresh(ctx, s)
	return nil
}

func (r *cachedSettlementRepo) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	var s domain.Settlement
	if found, err := r.cache.GetJSON(ctx, settlementNamespace, id, &s); err == nil && found {
		return &s, nil
	} else if err != nil {
		r.logger.Warn("settlement cache read failed", zap.String("settlement_id", id), zap.Error(err))
	}

	st, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, st)
	return st, nil
}

func (r *cachedSettlementRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Settlement, error) {
	return r.next.GetByIDForUpdate(ctx, id)
}

func (r *cachedSettlementRepo) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Settlement, error) {
	var s domain.Settlement
	if found, err := r.cache.GetJSON(ctx, settlementTxNamespace, transactionID, &s); err == nil && found {
		return &s, nil
	} else if err != nil {
		r.logger.Warn("settlement cache read failed", zap.String("transaction_id", transactionID), zap.Error(err))
	}

	st, err := r.next.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, st)
	return st, nil
}

func (r *cachedSettlementRepo) Update(ctx context.Context, s *domain.Settlement) error {
	if err := r.next.Update(ctx, s); err != nil {
		return err
	}
	r.refresh(ctx, s)
	return nil
}

func (r *cachedSettlementRepo) CommitFailure(ctx context.Context, s *domain.Settlement, t *domain.Transaction, reversal []*domain.LedgerEntry) error {
	if err := r.next.CommitFailure(ctx, s, t, reversal); err != nil {
		return err
	}
	r.refresh(ctx, s)
	return nil
}

func (r *cachedSettlementRepo) CommitReconciliation(ctx context.Context, s *domain.Settlement) error {
	if err := r.next.CommitReconciliation(ctx, s); err != nil {
		return err
	}
	r.refresh(ctx, s)
	return nil
}

// fill caches a record read from the store unless a newer write already did.
func (r *cachedSettlementRepo) fill(ctx context.Context, s *domain.Settlement) {
	if _, err := r.cache.SetJSONIfAbsent(ctx, settlementNamespace, s.ID, s, r.ttl); err != nil {
		r.logger.Warn("failed to cache settlement", zap.String("settlement_id", s.ID), zap.Error(err))
		return
	}
	if _, err := r.cache.SetJSONIfAbsent(ctx, settlementTxNamespace, s.TransactionID, s, r.ttl); err != nil {
		r.logger.Warn("failed to cache settlement", zap.String("transaction_id", s.TransactionID), zap.Error(err))
	}
}

// refresh overwrites the cached copy after a committed write, dropping it
// when the overwrite fails.
func (r *cachedSettlementRepo) refresh(ctx context.Context, s *domain.Settlement) {
	if err := r.cache.SetJSON(ctx, settlementNamespace, s.ID, s, r.ttl); err != nil {
		r.logger.Warn("failed to refresh cached settlement", zap.String("settlement_id", s.ID), zap.Error(err))
		r.invalidate(ctx, s)
		return
	}
	if err := r.cache.SetJSON(ctx, settlementTxNamespace, s.TransactionID, s, r.ttl); err != nil {
		r.logger.Warn("failed to refresh cached settlement", zap.String("transaction_id", s.TransactionID), zap.Error(err))
		r.invalidate(ctx, s)
	}
}

func (r *cachedSettlementRepo) invalidate(ctx context.Context, s *domain.Settlement) {
	if err := r.cache.Delete(ctx, settlementNamespace, s.ID); err != nil {
		r.logger.Warn("failed to invalidate settlement", zap.String("settlement_id", s.ID), zap.Error(err))
	}
	if err := r.cache.Delete(ctx, settlementTxNamespace, s.TransactionID); err != nil {
		r.logger.Warn("failed to invalidate settlement", zap.String("transaction_id", s.TransactionID), zap.Error(err))
	}
}
