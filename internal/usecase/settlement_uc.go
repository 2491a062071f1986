// usecase/settlement_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"
	"github.com/Elmahrosa/Teos-Bankchain/shared/utils/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func settlementLockKey(settlementID string) string { return "stl:" + settlementID }

// prepareSettlement prices and books a ready transaction without storing
// anything. The amount is booked in the reference currency, rounded once to
// its minor unit.
func (uc *ApprovalUsecase) prepareSettlement(_ context.Context, t *domain.Transaction, now time.Time) (*domain.Settlement, []*domain.LedgerEntry, error) {
	if !t.ReadyForSettlement() {
		return nil, nil, fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, xerrors.ErrInvalidApproval)
	}

	fee, err := uc.fees.ComputeFee(t.ReferenceAmount, t.Rail)
	if err != nil {
		return nil, nil, err
	}
	scheduled, err := uc.fees.ScheduleDate(t.Rail, now)
	if err != nil {
		return nil, nil, err
	}
	ref, err := uc.normalizer.Currency(t.ReferenceCurrency)
	if err != nil {
		return nil, nil, err
	}
	booked := domain.RoundMinor(t.ReferenceAmount, ref.Decimals)

	st := &domain.Settlement{
		ID:                   id.Generate("stl"),
		TransactionID:        t.ID,
		Rail:                 t.Rail,
		Amount:               booked,
		Currency:             ref.Code,
		Fee:                  fee,
		OriginalAmount:       t.Amount,
		OriginalCurrency:     t.Currency,
		Reference:            id.GenerateReference("STL"),
		Status:               domain.SettlementStatusPending,
		ScheduledDate:        scheduled,
		ReconciliationStatus: domain.ReconciliationPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	debitAccount, creditAccount, err := postingAccounts(t)
	if err != nil {
		return nil, nil, err
	}
	description := fmt.Sprintf("%s %s via %s", t.Type, t.ID, t.Rail)
	entries := []*domain.LedgerEntry{
		{
			ID:           id.Generate("led"),
			SettlementID: st.ID,
			AccountID:    debitAccount,
			Debit:        booked,
			Credit:       decimal.Zero,
			Currency:     ref.Code,
			Description:  description,
			Timestamp:    now,
		},
		{
			ID:           id.Generate("led"),
			SettlementID: st.ID,
			AccountID:    creditAccount,
			Debit:        decimal.Zero,
			Credit:       booked,
			Currency:     ref.Code,
			Description:  description,
			Timestamp:    now,
		},
	}
	if err := domain.CheckBalanced(entries); err != nil {
		return nil, nil, err
	}
	return st, entries, nil
}

// postingAccounts returns the debit and credit side for a transaction type.
func postingAccounts(t *domain.Transaction) (debit, credit string, err error) {
	clearing := t.Rail.ClearingAccount()
	switch t.Type {
	case domain.TransactionTypeDeposit:
		return clearing, t.AccountID, nil
	case domain.TransactionTypeWithdrawal:
		return t.AccountID, clearing, nil
	case domain.TransactionTypeTransfer:
		if t.CounterpartyAccountID == nil || *t.CounterpartyAccountID == "" {
			return "", "", xerrors.ErrRequiredFieldMissing
		}
		return t.AccountID, *t.CounterpartyAccountID, nil
	}
	return "", "", xerrors.ErrInvalidTransactionType
}

func (uc *ApprovalUsecase) afterSettlementCreated(ctx context.Context, t *domain.Transaction, st *domain.Settlement) {
	uc.metrics.Settlements.WithLabelValues(string(st.Rail), string(st.Status)).Inc()
	uc.logger.Info("settlement created",
		zap.String("transaction_id", t.ID),
		zap.String("settlement_id", st.ID),
		zap.String("rail", string(st.Rail)),
		zap.String("amount", st.Amount.String()),
		zap.String("fee", st.Fee.String()),
		zap.Time("scheduled_date", st.ScheduledDate))

	uc.publish(ctx, settlementEvent(domain.EventSettlementCreated, st))
}

func settlementEvent(eventType domain.EventType, st *domain.Settlement) *domain.Event {
	e := &domain.Event{
		EventType:     eventType,
		TransactionID: st.TransactionID,
		SettlementID:  st.ID,
		Status:        string(st.Status),
		Amount:        st.Amount.String(),
		Currency:      st.Currency,
	}
	if st.FailureReason != nil {
		e.Reason = *st.FailureReason
	}
	return e
}

// GetSettlement returns the settlement spawned by a transaction, or
// ErrSettlementNotFound while it has none.
func (uc *ApprovalUsecase) GetSettlement(ctx context.Context, transactionID string) (*domain.Settlement, error) {
	return uc.settlements.GetByTransactionID(ctx, transactionID)
}

func (uc *ApprovalUsecase) GetSettlementByID(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	return uc.settlements.GetByID(ctx, settlementID)
}

// MarkProcessing records the rail's acknowledgement: pending -> processing.
func (uc *ApprovalUsecase) MarkProcessing(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	unlock := uc.locks.Lock(settlementLockKey(settlementID))
	defer unlock()

	st, err := uc.settlements.GetByIDForUpdate(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case domain.SettlementStatusProcessing:
		return st, nil
	case domain.SettlementStatusCompleted, domain.SettlementStatusFailed:
		return nil, fmt.Errorf("settlement %s is %s: %w", st.ID, st.Status, xerrors.ErrSettlementClosed)
	}

	st.Status = domain.SettlementStatusProcessing
	st.UpdatedAt = uc.now()
	if err := uc.settlements.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to update settlement: %w", err)
	}

	uc.metrics.Settlements.WithLabelValues(string(st.Rail), string(st.Status)).Inc()
	uc.publish(ctx, settlementEvent(domain.EventSettlementProcessing, st))
	return st, nil
}

// MarkSettled completes a settlement. A second call returns the settled
// record unchanged and never touches the ledger.
func (uc *ApprovalUsecase) MarkSettled(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	unlock := uc.locks.Lock(settlementLockKey(settlementID))
	defer unlock()

	st, err := uc.settlements.GetByIDForUpdate(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case domain.SettlementStatusCompleted:
		return st, nil
	case domain.SettlementStatusFailed:
		return nil, fmt.Errorf("settlement %s is %s: %w", st.ID, st.Status, xerrors.ErrSettlementClosed)
	}

	now := uc.now()
	st.Status = domain.SettlementStatusCompleted
	st.CompletedDate = &now
	st.UpdatedAt = now
	if err := uc.settlements.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to update settlement: %w", err)
	}

	uc.metrics.Settlements.WithLabelValues(string(st.Rail), string(st.Status)).Inc()
	uc.logger.Info("settlement completed",
		zap.String("settlement_id", st.ID),
		zap.String("transaction_id", st.TransactionID))
	uc.publish(ctx, settlementEvent(domain.EventSettlementCompleted, st))
	return st, nil
}

// MarkFailed records a rail-side failure. The original entries stay as they
// are; a reversal pair is appended and the transaction's derived status
// becomes failed with its approvals intact.
func (uc *ApprovalUsecase) MarkFailed(ctx context.Context, settlementID, reason string) (*domain.Settlement, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, xerrors.ErrRequiredFieldMissing
	}

	unlock := uc.locks.Lock(settlementLockKey(settlementID))
	defer unlock()

	st, err := uc.settlements.GetByIDForUpdate(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case domain.SettlementStatusFailed:
		return st, nil
	case domain.SettlementStatusCompleted:
		return nil, fmt.Errorf("settlement %s is %s: %w", st.ID, st.Status, xerrors.ErrSettlementClosed)
	}

	txUnlock := uc.locks.Lock(txLockKey(st.TransactionID))
	defer txUnlock()

	t, err := uc.transactions.GetByID(ctx, st.TransactionID)
	if err != nil {
		return nil, err
	}
	original, err := uc.ledger.ListBySettlement(ctx, st.ID)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	reversal := reverseEntries(original, reason, now)

	st.Status = domain.SettlementStatusFailed
	st.FailureReason = domain.StrPtr(reason)
	st.UpdatedAt = now

	t.FailureReason = domain.StrPtr(reason)
	t.Refresh()
	t.UpdatedAt = now

	if err := uc.settlements.CommitFailure(ctx, st, t, reversal); err != nil {
		return nil, fmt.Errorf("failed to record settlement failure: %w", err)
	}

	uc.metrics.Settlements.WithLabelValues(string(st.Rail), string(st.Status)).Inc()
	uc.logger.Warn("settlement failed",
		zap.String("settlement_id", st.ID),
		zap.String("transaction_id", st.TransactionID),
		zap.String("reason", reason),
		zap.Int("reversal_entries", len(reversal)))
	uc.publish(ctx, settlementEvent(domain.EventSettlementFailed, st))
	return st, nil
}

// reverseEntries builds the compensating lines for a settlement's original
// postings, swapping each side.
func reverseEntries(original []*domain.LedgerEntry, reason string, now time.Time) []*domain.LedgerEntry {
	out := make([]*domain.LedgerEntry, 0, len(original))
	for _, e := range original {
		if e.Reversal {
			continue
		}
		out = append(out, &domain.LedgerEntry{
			ID:           id.Generate("led"),
			SettlementID: e.SettlementID,
			AccountID:    e.AccountID,
			Debit:        e.Credit,
			Credit:       e.Debit,
			Currency:     e.Currency,
			Description:  "reversal: " + reason,
			Reversal:     true,
			Timestamp:    now,
		})
	}
	return out
}

// ReconcileSettlement compares an external statement amount with the booked
// amount. It never alters the settlement's amounts.
func (uc *ApprovalUsecase) ReconcileSettlement(ctx context.Context, settlementID string, externalAmount decimal.Decimal) (*domain.Settlement, error) {
	if externalAmount.IsNegative() {
		return nil, xerrors.ErrInvalidAmount
	}

	unlock := uc.locks.Lock(settlementLockKey(settlementID))
	defer unlock()

	st, err := uc.settlements.GetByIDForUpdate(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	if externalAmount.Sub(st.Amount).Abs().LessThanOrEqual(domain.ReconciliationEpsilon) {
		st.ReconciliationStatus = domain.ReconciliationMatched
	} else {
		st.ReconciliationStatus = domain.ReconciliationUnmatched
	}
	ext := externalAmount
	st.ExternalAmount = &ext
	st.ReconciledAt = &now
	st.UpdatedAt = now

	if err := uc.settlements.CommitReconciliation(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to record reconciliation: %w", err)
	}

	uc.metrics.Reconciliations.WithLabelValues(string(st.ReconciliationStatus)).Inc()
	uc.logger.Info("settlement reconciled",
		zap.String("settlement_id", st.ID),
		zap.String("outcome", string(st.ReconciliationStatus)),
		zap.String("recorded", st.Amount.String()),
		zap.String("external", externalAmount.String()))

	e := settlementEvent(domain.EventSettlementReconciled, st)
	e.Status = string(st.ReconciliationStatus)
	uc.publish(ctx, e)
	return st, nil
}

func (uc *ApprovalUsecase) ListLedgerEntries(ctx context.Context, settlementID string) ([]*domain.LedgerEntry, error) {
	if _, err := uc.settlements.GetByID(ctx, settlementID); err != nil {
		return nil, err
	}
	return uc.ledger.ListBySettlement(ctx, settlementID)
}

func (uc *ApprovalUsecase) ListAccountEntries(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	return uc.ledger.ListByAccount(ctx, accountID)
}

func (uc *ApprovalUsecase) AccountBalance(ctx context.Context, accountID string) (*domain.AccountBalance, error) {
	return uc.ledger.GetBalance(ctx, accountID)
}
