package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ledgerRepo struct {
	db *pgxpool.Pool
}

func NewLedgerRepo(db *pgxpool.Pool) LedgerRepository {
	return &ledgerRepo{db: db}
}

const ledgerColumns = `
	id, settlement_id, account_id, debit, credit, balance, currency,
	description, reversal, reconciled, created_at`

func (r *ledgerRepo) ListBySettlement(ctx context.Context, settlementID string) ([]*domain.LedgerEntry, error) {
	return r.list(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE settlement_id = $1 ORDER BY seq`, settlementID)
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	return r.list(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY seq`, accountID)
}

func (r *ledgerRepo) GetBalance(ctx context.Context, accountID string) (*domain.AccountBalance, error) {
	var b domain.AccountBalance
	err := r.db.QueryRow(ctx, `
		SELECT account_id, currency, balance, updated_at
		FROM account_balances WHERE account_id = $1
	`, accountID).Scan(&b.AccountID, &b.Currency, &b.Balance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func (r *ledgerRepo) list(ctx context.Context, query string, arg string) ([]*domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.SettlementID, &e.AccountID, &e.Debit, &e.Credit, &e.Balance, &e.Currency,
			&e.Description, &e.Reversal, &e.Reconciled, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
