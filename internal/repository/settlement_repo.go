package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type settlementRepo struct {
	db *pgxpool.Pool
}

func NewSettlementRepo(db *pgxpool.Pool) SettlementRepository {
	return &settlementRepo{db: db}
}

const settlementColumns = `
	id, transaction_id, rail, amount, currency, fee, original_amount, original_currency,
	reference, status, scheduled_date, completed_date, failure_reason,
	reconciliation_status, external_amount, reconciled_at, created_at, updated_at`

func (r *settlementRepo) CommitSettlement(ctx context.Context, t *domain.Transaction, s *domain.Settlement, entries []*domain.LedgerEntry) error {
	if err := domain.CheckBalanced(entries); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertSettlement(ctx, tx, s); err != nil {
		return err
	}
	if err := postEntries(ctx, tx, entries); err != nil {
		return err
	}
	if err := updateTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *settlementRepo) CreateSettled(ctx context.Context, t *domain.Transaction, s *domain.Settlement, entries []*domain.LedgerEntry) error {
	if err := domain.CheckBalanced(entries); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	if err := insertSettlement(ctx, tx, s); err != nil {
		return err
	}
	if err := postEntries(ctx, tx, entries); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertSettlement(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO settlements (`+settlementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		s.ID, s.TransactionID, string(s.Rail), s.Amount, s.Currency, s.Fee, s.OriginalAmount, s.OriginalCurrency,
		s.Reference, string(s.Status), s.ScheduledDate, s.CompletedDate, s.FailureReason,
		string(s.ReconciliationStatus), nullDecimal(s.ExternalAmount), s.ReconciledAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGUniqueViolation {
			return fmt.Errorf("transaction %s: %w", s.TransactionID, xerrors.ErrSettlementExists)
		}
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

func (r *settlementRepo) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	row := r.db.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
	return scanSettlement(row)
}

func (r *settlementRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Settlement, error) {
	return r.GetByID(ctx, id)
}

func (r *settlementRepo) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Settlement, error) {
	row := r.db.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE transaction_id = $1`, transactionID)
	return scanSettlement(row)
}

func (r *settlementRepo) Update(ctx context.Context, s *domain.Settlement) error {
	return updateSettlement(ctx, r.db, s)
}

func (r *settlementRepo) CommitFailure(ctx context.Context, s *domain.Settlement, t *domain.Transaction, reversal []*domain.LedgerEntry) error {
	if err := domain.CheckBalanced(reversal); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current domain.SettlementStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM settlements WHERE id = $1 FOR UPDATE`, s.ID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrSettlementNotFound
		}
		return fmt.Errorf("failed to lock settlement: %w", err)
	}
	if current == domain.SettlementStatusCompleted || current == domain.SettlementStatusFailed {
		return fmt.Errorf("settlement %s is %s: %w", s.ID, current, xerrors.ErrSettlementClosed)
	}

	if err := updateSettlement(ctx, tx, s); err != nil {
		return err
	}
	if err := postEntries(ctx, tx, reversal); err != nil {
		return err
	}
	if err := updateTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *settlementRepo) CommitReconciliation(ctx context.Context, s *domain.Settlement) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateSettlement(ctx, tx, s); err != nil {
		return err
	}
	if s.ReconciliationStatus == domain.ReconciliationMatched {
		if _, err := tx.Exec(ctx,
			`UPDATE ledger_entries SET reconciled = TRUE WHERE settlement_id = $1`, s.ID); err != nil {
			return fmt.Errorf("failed to flag ledger entries: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// updateSettlement never moves a completed or failed row to another status.
func updateSettlement(ctx context.Context, db querier, s *domain.Settlement) error {
	tag, err := db.Exec(ctx, `
		UPDATE settlements
		SET status = $1, completed_date = $2, failure_reason = $3,
			reconciliation_status = $4, external_amount = $5, reconciled_at = $6, updated_at = $7
		WHERE id = $8 AND (status NOT IN ('completed', 'failed') OR status = $1)
	`, string(s.Status), s.CompletedDate, s.FailureReason,
		string(s.ReconciliationStatus), nullDecimal(s.ExternalAmount), s.ReconciledAt, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current domain.SettlementStatus
	if err := db.QueryRow(ctx, `SELECT status FROM settlements WHERE id = $1`, s.ID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrSettlementNotFound
		}
		return fmt.Errorf("failed to get settlement: %w", err)
	}
	return fmt.Errorf("settlement %s is %s: %w", s.ID, current, xerrors.ErrSettlementClosed)
}

// postEntries writes ledger lines with running balances. Balance rows are
// locked in account order so concurrent postings cannot deadlock or lose
// updates.
func postEntries(ctx context.Context, tx pgx.Tx, entries []*domain.LedgerEntry) error {
	accounts := make(map[string]string)
	for _, e := range entries {
		accounts[e.AccountID] = e.Currency
	}
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	balances := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		if _, err := tx.Exec(ctx, `
			INSERT INTO account_balances (account_id, currency, balance)
			VALUES ($1, $2, 0)
			ON CONFLICT (account_id) DO NOTHING
		`, id, accounts[id]); err != nil {
			return fmt.Errorf("failed to open account %s: %w", id, err)
		}
		var bal decimal.Decimal
		if err := tx.QueryRow(ctx,
			`SELECT balance FROM account_balances WHERE account_id = $1 FOR UPDATE`, id).Scan(&bal); err != nil {
			return fmt.Errorf("failed to lock account %s: %w", id, err)
		}
		balances[id] = bal
	}

	for _, e := range entries {
		bal := balances[e.AccountID].Add(e.Delta())
		balances[e.AccountID] = bal
		e.Balance = bal

		if _, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries
				(id, settlement_id, account_id, debit, credit, balance, currency, description, reversal, reconciled, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, e.ID, e.SettlementID, e.AccountID, e.Debit, e.Credit, e.Balance, e.Currency,
			e.Description, e.Reversal, e.Reconciled, e.Timestamp); err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}

	now := time.Now()
	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE account_balances SET balance = $1, updated_at = $2 WHERE account_id = $3`,
			balances[id], now, id); err != nil {
			return fmt.Errorf("failed to update balance %s: %w", id, err)
		}
	}
	return nil
}

func scanSettlement(row pgx.Row) (*domain.Settlement, error) {
	var s domain.Settlement
	var external decimal.NullDecimal
	err := row.Scan(
		&s.ID, &s.TransactionID, &s.Rail, &s.Amount, &s.Currency, &s.Fee, &s.OriginalAmount, &s.OriginalCurrency,
		&s.Reference, &s.Status, &s.ScheduledDate, &s.CompletedDate, &s.FailureReason,
		&s.ReconciliationStatus, &external, &s.ReconciledAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	if external.Valid {
		v := external.Decimal
		s.ExternalAmount = &v
	}
	return &s, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
