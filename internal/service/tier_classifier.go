package service

import (
	"fmt"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
)

// TierClassifier maps a reference-currency amount onto an approval tier.
// Intervals are half-open: an amount equal to a threshold escalates.
type TierClassifier struct {
	thresholds domain.TierThresholds
}

func NewTierClassifier(thresholds domain.TierThresholds) (*TierClassifier, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &TierClassifier{thresholds: thresholds}, nil
}

func (c *TierClassifier) Classify(amount decimal.Decimal) (domain.Tier, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("classify %s: %w", amount, xerrors.ErrInvalidAmount)
	}

	switch {
	case amount.LessThan(c.thresholds.Tier1):
		return domain.TierAuto, nil
	case amount.LessThan(c.thresholds.Tier2):
		return domain.Tier1, nil
	case amount.LessThan(c.thresholds.Tier3):
		return domain.Tier2, nil
	default:
		return domain.Tier3, nil
	}
}
