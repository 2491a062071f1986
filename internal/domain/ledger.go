package domain

import (
	"time"

	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
)

// LedgerEntry is a single double-entry line. Exactly one of Debit or Credit
// is non-zero. Balance is the account's running balance after this line,
// with credits increasing it.
type LedgerEntry struct {
	ID           string          `json:"id" db:"id"`
	SettlementID string          `json:"settlement_id" db:"settlement_id"`
	AccountID    string          `json:"account_id" db:"account_id"`
	Debit        decimal.Decimal `json:"debit" db:"debit"`
	Credit       decimal.Decimal `json:"credit" db:"credit"`
	Balance      decimal.Decimal `json:"balance" db:"balance"`
	Currency     string          `json:"currency" db:"currency"`
	Description  string          `json:"description" db:"description"`
	Reversal     bool            `json:"reversal" db:"reversal"`
	Reconciled   bool            `json:"reconciled" db:"reconciled"`
	Timestamp    time.Time       `json:"timestamp" db:"created_at"`
}

func (e *LedgerEntry) Validate() error {
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return xerrors.ErrInvalidEntry
	}
	if e.Debit.IsZero() == e.Credit.IsZero() {
		return xerrors.ErrInvalidEntry
	}
	return nil
}

// Delta is the signed effect of the entry on the account balance.
func (e *LedgerEntry) Delta() decimal.Decimal {
	return e.Credit.Sub(e.Debit)
}

// CheckBalanced validates every line and that debits equal credits.
func CheckBalanced(entries []*LedgerEntry) error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	if !debit.Equal(credit) {
		return xerrors.ErrUnbalancedEntries
	}
	return nil
}

// AccountBalance is the latest running balance of a ledger account.
type AccountBalance struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Currency  string          `json:"currency" db:"currency"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
