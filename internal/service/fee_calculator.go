package service

import (
	"fmt"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
)

// FeeCalculator computes settlement economics per rail
type FeeCalculator struct {
	configs  map[domain.Rail]*domain.SettlementConfig
	location *time.Location
}

// NewFeeCalculator uses loc for rails that do not carry their own location.
func NewFeeCalculator(configs map[domain.Rail]*domain.SettlementConfig, loc *time.Location) *FeeCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return &FeeCalculator{configs: configs, location: loc}
}

// Config returns the rail configuration, failing for unknown or disabled rails.
func (c *FeeCalculator) Config(rail domain.Rail) (*domain.SettlementConfig, error) {
	cfg, ok := c.configs[rail]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rail, xerrors.ErrUnknownRail)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%s: %w", rail, xerrors.ErrRailDisabled)
	}
	return cfg, nil
}

// ValidateAmount checks amount against the rail's [min, max] bounds.
func (c *FeeCalculator) ValidateAmount(amount decimal.Decimal, rail domain.Rail) error {
	cfg, err := c.Config(rail)
	if err != nil {
		return err
	}
	if amount.LessThan(cfg.MinAmount) || amount.GreaterThan(cfg.MaxAmount) {
		return fmt.Errorf("%s not in [%s, %s] for %s: %w",
			amount, cfg.MinAmount, cfg.MaxAmount, rail, xerrors.ErrAmountOutOfRange)
	}
	return nil
}

// ComputeFee returns amount*feePercentage + flatFee at full precision.
func (c *FeeCalculator) ComputeFee(amount decimal.Decimal, rail domain.Rail) (decimal.Decimal, error) {
	if err := c.ValidateAmount(amount, rail); err != nil {
		return decimal.Zero, err
	}
	cfg := c.configs[rail]
	return amount.Mul(cfg.FeePercentage).Add(cfg.FlatFee), nil
}

// CanSettleToday is true iff now is strictly before the rail's cutoff.
func (c *FeeCalculator) CanSettleToday(rail domain.Rail, now time.Time) (bool, error) {
	cfg, err := c.Config(rail)
	if err != nil {
		return false, err
	}
	local := now.In(c.locationFor(cfg))
	cutoff := time.Date(local.Year(), local.Month(), local.Day(),
		cfg.CutoffTime.Hour, cfg.CutoffTime.Minute, 0, 0, local.Location())
	return local.Before(cutoff), nil
}

// ScheduleDate is the start of the settlement day: today, or tomorrow once
// past cutoff, plus the rail's processing days.
func (c *FeeCalculator) ScheduleDate(rail domain.Rail, now time.Time) (time.Time, error) {
	today, err := c.CanSettleToday(rail, now)
	if err != nil {
		return time.Time{}, err
	}
	cfg := c.configs[rail]
	local := now.In(c.locationFor(cfg))

	days := cfg.ProcessingDays
	if !today {
		days++
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return start.AddDate(0, 0, days), nil
}

func (c *FeeCalculator) locationFor(cfg *domain.SettlementConfig) *time.Location {
	if cfg.Location != nil {
		return cfg.Location
	}
	return c.location
}
