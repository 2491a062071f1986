package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rail is a settlement channel.
type Rail string

const (
	RailBankTransfer    Rail = "bank_transfer"
	RailAgentNetwork    Rail = "agent_network"
	RailPiNetwork       Rail = "pi_network"
	RailInstantTransfer Rail = "instant_transfer"
)

func (r Rail) Valid() bool {
	switch r {
	case RailBankTransfer, RailAgentNetwork, RailPiNetwork, RailInstantTransfer:
		return true
	}
	return false
}

// ClearingAccount is the internal account a rail books against.
func (r Rail) ClearingAccount() string {
	return "settlement:" + string(r)
}

type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusCompleted  SettlementStatus = "completed"
	SettlementStatusFailed     SettlementStatus = "failed"
)

type ReconciliationStatus string

const (
	ReconciliationPending   ReconciliationStatus = "pending"
	ReconciliationMatched   ReconciliationStatus = "matched"
	ReconciliationUnmatched ReconciliationStatus = "unmatched"
)

// ReconciliationEpsilon is the tolerated difference between a recorded
// settlement amount and an external statement amount.
var ReconciliationEpsilon = decimal.RequireFromString("0.005")

// CutoffTime is a wall-clock HH:MM in the rail's location.
type CutoffTime struct {
	Hour   int
	Minute int
}

func ParseCutoff(s string) (CutoffTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return CutoffTime{}, fmt.Errorf("cutoff %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return CutoffTime{}, fmt.Errorf("cutoff %q: invalid hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return CutoffTime{}, fmt.Errorf("cutoff %q: invalid minute", s)
	}
	return CutoffTime{Hour: h, Minute: m}, nil
}

func MustParseCutoff(s string) CutoffTime {
	c, err := ParseCutoff(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CutoffTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// SettlementConfig is the static per-rail configuration. Amount bounds and the
// flat fee are in the reference currency.
type SettlementConfig struct {
	Rail           Rail            `json:"rail"`
	CutoffTime     CutoffTime      `json:"cutoff_time"`
	ProcessingDays int             `json:"processing_days"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	FeePercentage  decimal.Decimal `json:"fee_percentage"`
	FlatFee        decimal.Decimal `json:"flat_fee"`
	Enabled        bool            `json:"enabled"`
	Location       *time.Location  `json:"-"`
}

// DefaultSettlementConfigs returns the rail table, amounts in EGP.
func DefaultSettlementConfigs() map[Rail]*SettlementConfig {
	return map[Rail]*SettlementConfig{
		RailBankTransfer: {
			Rail:           RailBankTransfer,
			CutoffTime:     MustParseCutoff("15:00"),
			ProcessingDays: 1,
			MinAmount:      decimal.NewFromInt(100),
			MaxAmount:      decimal.NewFromInt(10_000_000),
			FeePercentage:  decimal.RequireFromString("0.001"),
			FlatFee:        decimal.NewFromInt(5),
			Enabled:        true,
		},
		RailInstantTransfer: {
			Rail:           RailInstantTransfer,
			CutoffTime:     MustParseCutoff("23:59"),
			ProcessingDays: 0,
			MinAmount:      decimal.NewFromInt(10),
			MaxAmount:      decimal.NewFromInt(50_000),
			FeePercentage:  decimal.RequireFromString("0.015"),
			FlatFee:        decimal.NewFromInt(10),
			Enabled:        true,
		},
		RailAgentNetwork: {
			Rail:           RailAgentNetwork,
			CutoffTime:     MustParseCutoff("20:00"),
			ProcessingDays: 0,
			MinAmount:      decimal.NewFromInt(50),
			MaxAmount:      decimal.NewFromInt(100_000),
			FeePercentage:  decimal.RequireFromString("0.02"),
			FlatFee:        decimal.Zero,
			Enabled:        true,
		},
		RailPiNetwork: {
			Rail:           RailPiNetwork,
			CutoffTime:     MustParseCutoff("23:59"),
			ProcessingDays: 0,
			MinAmount:      decimal.NewFromInt(1),
			MaxAmount:      decimal.NewFromInt(1_000_000),
			FeePercentage:  decimal.RequireFromString("0.005"),
			FlatFee:        decimal.Zero,
			Enabled:        true,
		},
	}
}

// Settlement is the rail-side record spawned by a fully approved transaction.
type Settlement struct {
	ID                   string               `json:"id" db:"id"`
	TransactionID        string               `json:"transaction_id" db:"transaction_id"`
	Rail                 Rail                 `json:"rail" db:"rail"`
	Amount               decimal.Decimal      `json:"amount" db:"amount"`
	Currency             string               `json:"currency" db:"currency"`
	Fee                  decimal.Decimal      `json:"fee" db:"fee"`
	OriginalAmount       decimal.Decimal      `json:"original_amount" db:"original_amount"`
	OriginalCurrency     string               `json:"original_currency" db:"original_currency"`
	Reference            string               `json:"reference" db:"reference"`
	Status               SettlementStatus     `json:"status" db:"status"`
	ScheduledDate        time.Time            `json:"scheduled_date" db:"scheduled_date"`
	CompletedDate        *time.Time           `json:"completed_date,omitempty" db:"completed_date"`
	FailureReason        *string              `json:"failure_reason,omitempty" db:"failure_reason"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status" db:"reconciliation_status"`
	ExternalAmount       *decimal.Decimal     `json:"external_amount,omitempty" db:"external_amount"`
	ReconciledAt         *time.Time           `json:"reconciled_at,omitempty" db:"reconciled_at"`
	CreatedAt            time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at" db:"updated_at"`
}

func (s *Settlement) IsTerminal() bool {
	return s.Status == SettlementStatusCompleted || s.Status == SettlementStatusFailed
}

func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return nil
	}
	c := *s
	c.FailureReason = cloneStr(s.FailureReason)
	if s.CompletedDate != nil {
		v := *s.CompletedDate
		c.CompletedDate = &v
	}
	if s.ExternalAmount != nil {
		v := *s.ExternalAmount
		c.ExternalAmount = &v
	}
	if s.ReconciledAt != nil {
		v := *s.ReconciledAt
		c.ReconciledAt = &v
	}
	return &c
}
