// domain/approval.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the approval classification of a transaction amount.
type Tier string

const (
	TierAuto Tier = "auto"
	Tier1    Tier = "tier_1"
	Tier2    Tier = "tier_2"
	Tier3    Tier = "tier_3"
)

// Rank orders tiers from least to most restrictive.
func (t Tier) Rank() int {
	switch t {
	case TierAuto:
		return 0
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	}
	return -1
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Role is an approver role. RoleSystem only ever signs auto-tier approvals.
type Role string

const (
	RoleOperations        Role = "operations"
	RoleComplianceOfficer Role = "compliance_officer"
	RoleBankAdmin         Role = "bank_admin"
	RoleSystem            Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOperations, RoleComplianceOfficer, RoleBankAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown approver role %q", s)
}

// RequiredApprovers returns the ordered roles that must sign off a tier.
// The returned slice is owned by the caller.
func RequiredApprovers(tier Tier) []Role {
	switch tier {
	case TierAuto:
		return []Role{}
	case Tier1:
		return []Role{RoleOperations}
	case Tier2:
		return []Role{RoleOperations, RoleComplianceOfficer}
	case Tier3:
		return []Role{RoleOperations, RoleComplianceOfficer, RoleBankAdmin}
	}
	return nil
}

// TierThresholds holds the lower bounds (reference currency) of tier_1..tier_3.
type TierThresholds struct {
	Tier1 decimal.Decimal `json:"tier_1"`
	Tier2 decimal.Decimal `json:"tier_2"`
	Tier3 decimal.Decimal `json:"tier_3"`
}

// DefaultTierThresholds are expressed in EGP.
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{
		Tier1: decimal.NewFromInt(10_000),
		Tier2: decimal.NewFromInt(100_000),
		Tier3: decimal.NewFromInt(1_000_000),
	}
}

func (t TierThresholds) Validate() error {
	if !t.Tier1.IsPositive() {
		return fmt.Errorf("tier_1 threshold must be positive, got %s", t.Tier1)
	}
	if !t.Tier2.GreaterThan(t.Tier1) || !t.Tier3.GreaterThan(t.Tier2) {
		return fmt.Errorf("tier thresholds must be strictly increasing: %s < %s < %s", t.Tier1, t.Tier2, t.Tier3)
	}
	return nil
}

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval is one role's slot on a transaction.
type Approval struct {
	Role       Role           `json:"role" db:"role"`
	Status     ApprovalStatus `json:"status" db:"status"`
	ApproverID *string        `json:"approver_id,omitempty" db:"approver_id"`
	Comments   *string        `json:"comments,omitempty" db:"comments"`
	Timestamp  *time.Time     `json:"timestamp,omitempty" db:"decided_at"`
}

func (a *Approval) clone() *Approval {
	c := *a
	if a.ApproverID != nil {
		v := *a.ApproverID
		c.ApproverID = &v
	}
	if a.Comments != nil {
		v := *a.Comments
		c.Comments = &v
	}
	if a.Timestamp != nil {
		v := *a.Timestamp
		c.Timestamp = &v
	}
	return &c
}

type ApproveRequest struct {
	TransactionID string
	Role          Role
	ApproverID    string
	Comments      *string
}

type RejectRequest struct {
	TransactionID string
	Role          Role
	ApproverID    string
	Reason        string
}
