package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// NewPostgresRepositories returns repositories backed by PostgreSQL.
func NewPostgresRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Transactions: NewTransactionRepo(db),
		Settlements:  NewSettlementRepo(db),
		Ledger:       NewLedgerRepo(db),
	}
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepo(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

const transactionColumns = `
	id, type, amount, currency, reference_amount, reference_currency, rail,
	account_id, counterparty_account_id, description, requested_by,
	required_tier, required_approvers, status, settlement_id, failure_reason,
	created_at, updated_at, completed_at`

func (r *transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if err := r.loadApprovals(ctx, []*domain.Transaction{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *transactionRepo) Update(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *transactionRepo) List(ctx context.Context, filter *domain.TransactionFilter) ([]*domain.Transaction, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter != nil && filter.Status != nil {
		where += fmt.Sprintf(" AND t.status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter != nil && filter.PendingRole != nil {
		where += fmt.Sprintf(` AND t.status = 'pending' AND EXISTS (
			SELECT 1 FROM transaction_approvals a
			WHERE a.transaction_id = t.id AND a.role = $%d AND a.status = 'pending')`, argIndex)
		args = append(args, string(*filter.PendingRole))
		argIndex++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions t`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit, offset := 50, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions t` + where +
		fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.loadApprovals(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *transactionRepo) loadApprovals(ctx context.Context, txns []*domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Transaction, len(txns))
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		t.Approvals = make(map[domain.Role]*domain.Approval)
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT transaction_id, role, status, approver_id, comments, decided_at
		FROM transaction_approvals
		WHERE transaction_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var a domain.Approval
		if err := rows.Scan(&txID, &a.Role, &a.Status, &a.ApproverID, &a.Comments, &a.Timestamp); err != nil {
			return err
		}
		byID[txID].Approvals[a.Role] = &a
	}
	return rows.Err()
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		t.ID, string(t.Type), t.Amount, t.Currency, t.ReferenceAmount, t.ReferenceCurrency, string(t.Rail),
		t.AccountID, t.CounterpartyAccountID, t.Description, t.RequestedBy,
		string(t.RequiredTier), rolesToStrings(t.RequiredApprovers), string(t.Status), t.SettlementID, t.FailureReason,
		t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGUniqueViolation {
			return xerrors.ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return upsertApprovals(ctx, tx, t)
}

func updateTransaction(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1, settlement_id = $2, failure_reason = $3,
			updated_at = $4, completed_at = $5
		WHERE id = $6
	`, string(t.Status), t.SettlementID, t.FailureReason, t.UpdatedAt, t.CompletedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrTransactionNotFound
	}
	return upsertApprovals(ctx, tx, t)
}

func upsertApprovals(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	batch := &pgx.Batch{}
	for _, a := range t.Approvals {
		batch.Queue(`
			INSERT INTO transaction_approvals (transaction_id, role, status, approver_id, comments, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (transaction_id, role) DO UPDATE
			SET status = EXCLUDED.status, approver_id = EXCLUDED.approver_id,
				comments = EXCLUDED.comments, decided_at = EXCLUDED.decided_at
		`, t.ID, string(a.Role), string(a.Status), a.ApproverID, a.Comments, a.Timestamp)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store approvals: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var approvers []string
	err := row.Scan(
		&t.ID, &t.Type, &t.Amount, &t.Currency, &t.ReferenceAmount, &t.ReferenceCurrency, &t.Rail,
		&t.AccountID, &t.CounterpartyAccountID, &t.Description, &t.RequestedBy,
		&t.RequiredTier, &approvers, &t.Status, &t.SettlementID, &t.FailureReason,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RequiredApprovers = make([]domain.Role, 0, len(approvers))
	for _, a := range approvers {
		t.RequiredApprovers = append(t.RequiredApprovers, domain.Role(a))
	}
	return &t, nil
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
