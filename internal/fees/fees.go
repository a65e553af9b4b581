// Package fees resolves platform fee percentages and seller tier policy.
//
// Base fee lookup walks from the most specific rule to the least:
// game+platform+level, then game+level, then game default, then the global
// default. The effective fee applies the seller tier discount on top.
package fees

import (
	"context"

	"github.com/ptzlabs/marketplace/internal/money"
)

// Seller tiers in ascending order of lifetime volume.
const (
	LevelBronze   = "bronze"
	LevelSilver   = "silver"
	LevelGold     = "gold"
	LevelPlatinum = "platinum"
	LevelDiamond  = "diamond"
)

// Rule is one row of the fee-rule table. Empty PlatformID / SellerLevel
// mean "any".
type Rule struct {
	GameID      string `json:"gameId"`
	PlatformID  string `json:"platformId,omitempty"`
	SellerLevel string `json:"sellerLevel,omitempty"`
	FeePercent  string `json:"feePercent"`
}

// RuleStore looks up fee rules. Lookup returns ("", nil) when no rule
// matches the exact triple.
type RuleStore interface {
	Lookup(ctx context.Context, gameID, platformID, sellerLevel string) (string, error)
}

// Quote is a resolved fee breakdown for one order.
type Quote struct {
	BasePercent      string `json:"basePercent"`
	DiscountPercent  string `json:"discountPercent"` // seller tier discount, percent of the fee
	EffectivePercent string `json:"effectivePercent"`
	FeeUSD           string `json:"feeUsd"`
	EarningsUSD      string `json:"earningsUsd"`
}

// Resolver computes fee quotes.
type Resolver struct {
	rules          RuleStore
	defaultPercent string
}

// NewResolver creates a resolver. defaultPercent is the global fallback
// (spec default "5").
func NewResolver(rules RuleStore, defaultPercent string) *Resolver {
	if defaultPercent == "" {
		defaultPercent = "5"
	}
	return &Resolver{rules: rules, defaultPercent: defaultPercent}
}

// BasePercent resolves the base fee percent, most-specific match first.
func (r *Resolver) BasePercent(ctx context.Context, gameID, platformID, sellerLevel string) (string, error) {
	if r.rules != nil {
		lookups := [][3]string{
			{gameID, platformID, sellerLevel},
			{gameID, "", sellerLevel},
			{gameID, "", ""},
		}
		for _, l := range lookups {
			if l[0] == "" {
				continue
			}
			pct, err := r.rules.Lookup(ctx, l[0], l[1], l[2])
			if err != nil {
				return "", err
			}
			if pct != "" {
				return pct, nil
			}
		}
	}
	return r.defaultPercent, nil
}

// Quote resolves the full breakdown for an order amount.
func (r *Resolver) Quote(ctx context.Context, amount, gameID, platformID, sellerLevel string) (*Quote, error) {
	base, err := r.BasePercent(ctx, gameID, platformID, sellerLevel)
	if err != nil {
		return nil, err
	}

	discount := DiscountPercent(sellerLevel)

	// effective = base * (1 - discount/100)
	keep := money.Sub("100", discount) // e.g. silver: 90
	effective, _ := money.ApplyPercent(base, keep)

	fee, _ := money.ApplyPercent(amount, effective)
	earnings := money.Sub(amount, fee)

	return &Quote{
		BasePercent:      base,
		DiscountPercent:  discount,
		EffectivePercent: effective,
		FeeUSD:           fee,
		EarningsUSD:      earnings,
	}, nil
}

// DiscountPercent returns the tier's fee discount in percent.
func DiscountPercent(level string) string {
	switch level {
	case LevelSilver:
		return "10"
	case LevelGold:
		return "20"
	case LevelPlatinum:
		return "35"
	case LevelDiamond:
		return "50"
	default:
		return "0"
	}
}

// LevelForVolume maps lifetime sales volume (USD) to a tier.
func LevelForVolume(volume string) string {
	switch {
	case money.Cmp(volume, "1500") >= 0:
		return LevelDiamond
	case money.Cmp(volume, "750") >= 0:
		return LevelPlatinum
	case money.Cmp(volume, "350") >= 0:
		return LevelGold
	case money.Cmp(volume, "100") >= 0:
		return LevelSilver
	default:
		return LevelBronze
	}
}
