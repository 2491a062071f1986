package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"
	"github.com/Elmahrosa/Teos-Bankchain/shared/utils/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTier2Txn() *domain.Transaction {
	t := &domain.Transaction{
		ID:                id.Generate("txn"),
		Type:              domain.TransactionTypeWithdrawal,
		Amount:            decimal.NewFromInt(150_000),
		Currency:          "EGP",
		ReferenceAmount:   decimal.NewFromInt(150_000),
		ReferenceCurrency: "EGP",
		Rail:              domain.RailBankTransfer,
		AccountID:         id.Generate("acc"),
		RequestedBy:       "teller",
		RequiredTier:      domain.Tier2,
		RequiredApprovers: domain.RequiredApprovers(domain.Tier2),
		Approvals: map[domain.Role]*domain.Approval{
			domain.RoleOperations:        {Role: domain.RoleOperations, Status: domain.ApprovalStatusPending},
			domain.RoleComplianceOfficer: {Role: domain.RoleComplianceOfficer, Status: domain.ApprovalStatusPending},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	t.Refresh()
	return t
}

func approve(t *domain.Transaction, role domain.Role, approver string) {
	at := testNow.Add(time.Minute)
	t.Approvals[role] = &domain.Approval{Role: role, Status: domain.ApprovalStatusApproved, ApproverID: &approver, Timestamp: &at}
	t.UpdatedAt = at
	t.Refresh()
}

func newSettlement(t *domain.Transaction) (*domain.Settlement, []*domain.LedgerEntry) {
	st := &domain.Settlement{
		ID:                   id.Generate("stl"),
		TransactionID:        t.ID,
		Rail:                 t.Rail,
		Amount:               t.ReferenceAmount,
		Currency:             t.ReferenceCurrency,
		Fee:                  decimal.NewFromInt(155),
		OriginalAmount:       t.Amount,
		OriginalCurrency:     t.Currency,
		Reference:            id.GenerateReference("STL"),
		Status:               domain.SettlementStatusPending,
		ScheduledDate:        testNow.AddDate(0, 0, 1),
		ReconciliationStatus: domain.ReconciliationPending,
		CreatedAt:            testNow,
		UpdatedAt:            testNow,
	}
	t.SettlementID = &st.ID
	entries := []*domain.LedgerEntry{
		{ID: id.Generate("le"), SettlementID: st.ID, AccountID: t.AccountID, Debit: st.Amount, Currency: st.Currency, Timestamp: testNow},
		{ID: id.Generate("le"), SettlementID: st.ID, AccountID: t.Rail.ClearingAccount(), Credit: st.Amount, Currency: st.Currency, Timestamp: testNow},
	}
	return st, entries
}

func reverse(entries []*domain.LedgerEntry) []*domain.LedgerEntry {
	out := make([]*domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, &domain.LedgerEntry{
			ID: id.Generate("le"), SettlementID: e.SettlementID, AccountID: e.AccountID,
			Debit: e.Credit, Credit: e.Debit, Currency: e.Currency,
			Description: "reversal: bounced", Reversal: true, Timestamp: testNow,
		})
	}
	return out
}

// runRepositoryContract exercises behaviour every store must share.
func runRepositoryContract(t *testing.T, repos *Repositories) {
	ctx := context.Background()

	t.Run("create and read transaction", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		assert.ErrorIs(t, repos.Transactions.Create(ctx, txn), xerrors.ErrDuplicateTransaction)

		got, err := repos.Transactions.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusPending, got.Status)
		assert.Equal(t, txn.RequiredApprovers, got.RequiredApprovers)
		assert.Len(t, got.Approvals, 2)
		assert.True(t, got.Amount.Equal(txn.Amount))

		_, err = repos.Transactions.GetByID(ctx, "txn_missing")
		assert.ErrorIs(t, err, xerrors.ErrTransactionNotFound)
	})

	t.Run("update persists approvals", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))

		approve(txn, domain.RoleOperations, "ops-1")
		require.NoError(t, repos.Transactions.Update(ctx, txn))

		got, err := repos.Transactions.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Approvals[domain.RoleOperations].ApproverID)
		assert.Equal(t, "ops-1", *got.Approvals[domain.RoleOperations].ApproverID)
		assert.Equal(t, []domain.Role{domain.RoleComplianceOfficer}, got.PendingRoles())

		role := domain.RoleComplianceOfficer
		list, _, err := repos.Transactions.List(ctx, &domain.TransactionFilter{PendingRole: &role, Limit: 500})
		require.NoError(t, err)
		assert.Contains(t, ids(list), txn.ID)

		role = domain.RoleOperations
		list, _, err = repos.Transactions.List(ctx, &domain.TransactionFilter{PendingRole: &role, Limit: 500})
		require.NoError(t, err)
		assert.NotContains(t, ids(list), txn.ID)

		assert.ErrorIs(t, repos.Transactions.Update(ctx, newTier2Txn()), xerrors.ErrTransactionNotFound)
	})

	t.Run("commit settlement posts balanced entries", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)

		require.NoError(t, repos.Settlements.CommitSettlement(ctx, txn, st, entries))

		got, err := repos.Settlements.GetByTransactionID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, st.ID, got.ID)
		assert.True(t, got.Fee.Equal(decimal.NewFromInt(155)))

		stored, err := repos.Transactions.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, stored.Status)
		require.NotNil(t, stored.SettlementID)
		assert.Equal(t, st.ID, *stored.SettlementID)

		lines, err := repos.Ledger.ListBySettlement(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, lines, 2)
		require.NoError(t, domain.CheckBalanced(lines))

		bal, err := repos.Ledger.GetBalance(ctx, txn.AccountID)
		require.NoError(t, err)
		assert.True(t, bal.Balance.Equal(decimal.NewFromInt(-150_000)), "got %s", bal.Balance)

		again, moreEntries := newSettlement(txn)
		assert.ErrorIs(t, repos.Settlements.CommitSettlement(ctx, txn, again, moreEntries), xerrors.ErrSettlementExists)

		_, err = repos.Ledger.GetBalance(ctx, "acc_never_used")
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})

	t.Run("unbalanced commit stores nothing", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)
		entries[1].Credit = entries[1].Credit.Sub(decimal.RequireFromString("0.01"))

		assert.ErrorIs(t, repos.Settlements.CommitSettlement(ctx, txn, st, entries), xerrors.ErrUnbalancedEntries)

		_, err := repos.Settlements.GetByTransactionID(ctx, txn.ID)
		assert.ErrorIs(t, err, xerrors.ErrSettlementNotFound)
		stored, err := repos.Transactions.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusPending, stored.Status)
		_, err = repos.Ledger.GetBalance(ctx, txn.AccountID)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})

	t.Run("create settled stores everything together", func(t *testing.T) {
		txn := newTier2Txn()
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)

		require.NoError(t, repos.Settlements.CreateSettled(ctx, txn, st, entries))

		stored, err := repos.Transactions.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, stored.Status)
		require.NotNil(t, stored.SettlementID)
		assert.Equal(t, st.ID, *stored.SettlementID)
		assert.Len(t, stored.Approvals, 2)

		got, err := repos.Settlements.GetByTransactionID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, st.ID, got.ID)
		lines, err := repos.Ledger.ListBySettlement(ctx, st.ID)
		require.NoError(t, err)
		assert.Len(t, lines, 2)

		again, moreEntries := newSettlement(txn)
		assert.ErrorIs(t, repos.Settlements.CreateSettled(ctx, txn, again, moreEntries), xerrors.ErrDuplicateTransaction)
		lines, err = repos.Ledger.ListBySettlement(ctx, again.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("unbalanced create settled stores nothing", func(t *testing.T) {
		txn := newTier2Txn()
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)
		entries[0].Debit = entries[0].Debit.Add(decimal.RequireFromString("0.01"))

		assert.ErrorIs(t, repos.Settlements.CreateSettled(ctx, txn, st, entries), xerrors.ErrUnbalancedEntries)

		_, err := repos.Transactions.GetByID(ctx, txn.ID)
		assert.ErrorIs(t, err, xerrors.ErrTransactionNotFound)
		_, err = repos.Settlements.GetByID(ctx, st.ID)
		assert.ErrorIs(t, err, xerrors.ErrSettlementNotFound)
		_, err = repos.Ledger.GetBalance(ctx, txn.AccountID)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})

	t.Run("terminal settlement is not reopened", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)
		require.NoError(t, repos.Settlements.CommitSettlement(ctx, txn, st, entries))

		reason := "bounced"
		failed := st.Clone()
		failed.Status = domain.SettlementStatusFailed
		failed.FailureReason = &reason
		txn.FailureReason = &reason
		txn.Refresh()
		require.NoError(t, repos.Settlements.CommitFailure(ctx, failed, txn, reverse(entries)))

		assert.ErrorIs(t, repos.Settlements.CommitFailure(ctx, failed, txn, reverse(entries)), xerrors.ErrSettlementClosed)
		assert.ErrorIs(t, repos.Settlements.Update(ctx, st), xerrors.ErrSettlementClosed)

		got, err := repos.Settlements.GetByIDForUpdate(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SettlementStatusFailed, got.Status)
		lines, err := repos.Ledger.ListBySettlement(ctx, st.ID)
		require.NoError(t, err)
		assert.Len(t, lines, 4)

		ext := decimal.NewFromInt(1)
		failed.ExternalAmount = &ext
		failed.ReconciliationStatus = domain.ReconciliationUnmatched
		require.NoError(t, repos.Settlements.CommitReconciliation(ctx, failed))
	})

	t.Run("failure appends reversal", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)
		require.NoError(t, repos.Settlements.CommitSettlement(ctx, txn, st, entries))

		reason := "bounced"
		st.Status = domain.SettlementStatusFailed
		st.FailureReason = &reason
		txn.FailureReason = &reason
		txn.Refresh()
		require.NoError(t, repos.Settlements.CommitFailure(ctx, st, txn, reverse(entries)))

		lines, err := repos.Ledger.ListBySettlement(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, lines, 4)
		assert.False(t, lines[0].Reversal)
		assert.True(t, lines[3].Reversal)

		bal, err := repos.Ledger.GetBalance(ctx, txn.AccountID)
		require.NoError(t, err)
		assert.True(t, bal.Balance.IsZero())

		accountLines, err := repos.Ledger.ListByAccount(ctx, txn.AccountID)
		require.NoError(t, err)
		require.Len(t, accountLines, 2)
		assert.True(t, accountLines[0].Balance.Equal(decimal.NewFromInt(-150_000)))
		assert.True(t, accountLines[1].Balance.IsZero())

		stored, err := repos.Transactions.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, stored.Status)
	})

	t.Run("matched reconciliation flags entries", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)
		require.NoError(t, repos.Settlements.CommitSettlement(ctx, txn, st, entries))

		ext := decimal.RequireFromString("150000.004")
		at := testNow.Add(time.Hour)
		st.ExternalAmount = &ext
		st.ReconciledAt = &at
		st.ReconciliationStatus = domain.ReconciliationMatched
		require.NoError(t, repos.Settlements.CommitReconciliation(ctx, st))

		got, err := repos.Settlements.GetByID(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconciliationMatched, got.ReconciliationStatus)
		require.NotNil(t, got.ExternalAmount)
		assert.True(t, got.ExternalAmount.Equal(ext))

		lines, err := repos.Ledger.ListBySettlement(ctx, st.ID)
		require.NoError(t, err)
		for _, l := range lines {
			assert.True(t, l.Reconciled)
		}
	})

	t.Run("settlement update", func(t *testing.T) {
		txn := newTier2Txn()
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		approve(txn, domain.RoleOperations, "ops-1")
		approve(txn, domain.RoleComplianceOfficer, "comp-1")
		st, entries := newSettlement(txn)
		require.NoError(t, repos.Settlements.CommitSettlement(ctx, txn, st, entries))

		st.Status = domain.SettlementStatusProcessing
		require.NoError(t, repos.Settlements.Update(ctx, st))
		got, err := repos.Settlements.GetByID(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SettlementStatusProcessing, got.Status)

		missing, _ := newSettlement(newTier2Txn())
		assert.ErrorIs(t, repos.Settlements.Update(ctx, missing), xerrors.ErrSettlementNotFound)
		_, err = repos.Settlements.GetByID(ctx, missing.ID)
		assert.ErrorIs(t, err, xerrors.ErrSettlementNotFound)
	})
}

func ids(txns []*domain.Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}
