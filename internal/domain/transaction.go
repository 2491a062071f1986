package domain

import (
	"time"

	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusApproved  TransactionStatus = "approved"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is a monetary request routed through tiered approval.
type Transaction struct {
	ID                    string             `json:"id" db:"id"`
	Type                  TransactionType    `json:"type" db:"type"`
	Amount                decimal.Decimal    `json:"amount" db:"amount"`
	Currency              string             `json:"currency" db:"currency"`
	ReferenceAmount       decimal.Decimal    `json:"reference_amount" db:"reference_amount"`
	ReferenceCurrency     string             `json:"reference_currency" db:"reference_currency"`
	Rail                  Rail               `json:"rail" db:"rail"`
	AccountID             string             `json:"account_id" db:"account_id"`
	CounterpartyAccountID *string            `json:"counterparty_account_id,omitempty" db:"counterparty_account_id"`
	Description           *string            `json:"description,omitempty" db:"description"`
	RequestedBy           string             `json:"requested_by" db:"requested_by"`
	RequiredTier          Tier               `json:"required_tier" db:"required_tier"`
	RequiredApprovers     []Role             `json:"required_approvers" db:"required_approvers"`
	Approvals             map[Role]*Approval `json:"approvals"`
	Status                TransactionStatus  `json:"status" db:"status"`
	SettlementID          *string            `json:"settlement_id,omitempty" db:"settlement_id"`
	FailureReason         *string            `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt             time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at" db:"updated_at"`
	CompletedAt           *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// SubmitRequest is the input to transaction submission. Rail defaults to
// bank_transfer when empty.
type SubmitRequest struct {
	Type                  TransactionType
	Amount                decimal.Decimal
	Currency              string
	Rail                  Rail
	AccountID             string
	CounterpartyAccountID *string
	Description           *string
	RequestedBy           string
}

func (r *SubmitRequest) Validate() error {
	if !r.Type.Valid() {
		return xerrors.ErrInvalidTransactionType
	}
	if !r.Amount.IsPositive() {
		return xerrors.ErrInvalidAmount
	}
	if r.Currency == "" || r.AccountID == "" || r.RequestedBy == "" {
		return xerrors.ErrRequiredFieldMissing
	}
	if r.Type == TransactionTypeTransfer {
		if r.CounterpartyAccountID == nil || *r.CounterpartyAccountID == "" {
			return xerrors.ErrRequiredFieldMissing
		}
	}
	return nil
}

// DeriveStatus computes a transaction status from its approval slots. It is
// the only place a status is decided.
func DeriveStatus(required []Role, approvals map[Role]*Approval, failed bool) TransactionStatus {
	if failed {
		return TransactionStatusFailed
	}
	for _, a := range approvals {
		if a.Status == ApprovalStatusRejected {
			return TransactionStatusRejected
		}
	}
	if len(required) == 0 {
		if a, ok := approvals[RoleSystem]; ok && a.Status == ApprovalStatusApproved {
			return TransactionStatusApproved
		}
		return TransactionStatusPending
	}
	for _, role := range required {
		a, ok := approvals[role]
		if !ok || a.Status != ApprovalStatusApproved {
			return TransactionStatusPending
		}
	}
	return TransactionStatusCompleted
}

// Refresh recomputes Status from the approval slots.
func (t *Transaction) Refresh() {
	t.Status = DeriveStatus(t.RequiredApprovers, t.Approvals, t.FailureReason != nil)
}

// IsClosed reports whether no further approval events may be applied.
func (t *Transaction) IsClosed() bool {
	switch t.Status {
	case TransactionStatusApproved, TransactionStatusCompleted,
		TransactionStatusRejected, TransactionStatusFailed:
		return true
	}
	return false
}

// ReadyForSettlement reports whether every required sign-off is in.
func (t *Transaction) ReadyForSettlement() bool {
	return t.Status == TransactionStatusApproved || t.Status == TransactionStatusCompleted
}

func (t *Transaction) Requires(role Role) bool {
	for _, r := range t.RequiredApprovers {
		if r == role {
			return true
		}
	}
	return false
}

// PendingRoles lists required roles whose slot is still pending, in order.
func (t *Transaction) PendingRoles() []Role {
	var out []Role
	for _, r := range t.RequiredApprovers {
		if a, ok := t.Approvals[r]; ok && a.Status == ApprovalStatusPending {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy so stored records never alias caller state.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.RequiredApprovers = append([]Role(nil), t.RequiredApprovers...)
	c.Approvals = make(map[Role]*Approval, len(t.Approvals))
	for k, v := range t.Approvals {
		c.Approvals[k] = v.clone()
	}
	c.CounterpartyAccountID = cloneStr(t.CounterpartyAccountID)
	c.Description = cloneStr(t.Description)
	c.SettlementID = cloneStr(t.SettlementID)
	c.FailureReason = cloneStr(t.FailureReason)
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

type TransactionFilter struct {
	Status      *TransactionStatus
	PendingRole *Role
	Limit       int
	Offset      int
}

func (f *TransactionFilter) Matches(t *Transaction) bool {
	if f == nil {
		return true
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.PendingRole != nil {
		if t.Status != TransactionStatusPending {
			return false
		}
		a, ok := t.Approvals[*f.PendingRole]
		if !ok || a.Status != ApprovalStatusPending {
			return false
		}
	}
	return true
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func StrPtr(s string) *string {
	return &s
}
