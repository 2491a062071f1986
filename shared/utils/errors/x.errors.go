package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const PGUniqueViolation = "23505"

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalServer       = errors.New("internal server error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input provided")
	ErrRequiredFieldMissing = errors.New("required field missing")
)

// Amounts & currencies
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Transactions & approvals
var (
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidApproval        = errors.New("invalid approval")
	ErrTransactionClosed      = errors.New("transaction is closed")
	ErrSelfApprovalNotAllowed = errors.New("requester cannot approve own transaction")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateTransaction   = errors.New("transaction already exists")
)

// Settlement rails
var (
	ErrUnknownRail        = errors.New("unknown settlement rail")
	ErrRailDisabled       = errors.New("settlement rail disabled")
	ErrAmountOutOfRange   = errors.New("amount out of range for rail")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrSettlementClosed   = errors.New("settlement is closed")
	ErrSettlementExists   = errors.New("settlement already exists for transaction")
)

// Ledger
var (
	ErrUnbalancedEntries = errors.New("ledger entries do not balance")
	ErrInvalidEntry      = errors.New("ledger entry must carry exactly one of debit or credit")
)

// IsValidation reports whether err is a local validation failure that the
// caller should surface as a client error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest, ErrInvalidInput, ErrRequiredFieldMissing,
		ErrInvalidAmount, ErrUnsupportedCurrency, ErrInvalidTransactionType,
		ErrInvalidApproval, ErrTransactionClosed, ErrSelfApprovalNotAllowed,
		ErrUnknownRail, ErrRailDisabled, ErrAmountOutOfRange, ErrSettlementClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
