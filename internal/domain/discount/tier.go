// Package discount maps a customer's completed-order spend to a loyalty tier.
package discount

import "github.com/shopspring/decimal"

// Tier is a discount bracket keyed by cumulative Delivered-order spend.
type Tier struct {
	Name      string
	Percent   decimal.Decimal
	Threshold decimal.Decimal
}

// Tiers are ordered from highest to lowest threshold; the first match wins.
var Tiers = []Tier{
	{Name: "Gold", Percent: decimal.NewFromInt(15), Threshold: decimal.NewFromInt(10000)},
	{Name: "Silver", Percent: decimal.NewFromInt(10), Threshold: decimal.NewFromInt(5000)},
	{Name: "Bronze", Percent: decimal.NewFromInt(5), Threshold: decimal.NewFromInt(1000)},
}

// None is the tier of customers below every threshold.
var None = Tier{Name: "No discount", Percent: decimal.Zero, Threshold: decimal.Zero}

// Info is a snapshot of a customer's position in the tier ladder.
type Info struct {
	CurrentPercent     decimal.Decimal
	TotalSpent         decimal.Decimal
	AmountToNextLevel  decimal.Decimal
	NextLevelThreshold decimal.Decimal
	Tier               string
}

// ForSpend returns the tier reached with the given spend.
func ForSpend(spend decimal.Decimal) Tier {
	for _, t := range Tiers {
		if spend.GreaterThanOrEqual(t.Threshold) {
			return t
		}
	}
	return None
}

// Percent returns the discount percentage for the given spend.
func Percent(spend decimal.Decimal) decimal.Decimal {
	return ForSpend(spend).Percent
}

// NextThreshold returns the smallest tier boundary strictly above spend, or
// zero once the top tier is reached.
func NextThreshold(spend decimal.Decimal) decimal.Decimal {
	next := decimal.Zero
	for _, t := range Tiers {
		if spend.LessThan(t.Threshold) {
			next = t.Threshold
		}
	}
	return next
}

// Describe builds the tier snapshot for the given spend.
func Describe(spend decimal.Decimal) Info {
	tier := ForSpend(spend)
	next := NextThreshold(spend)
	return Info{
		CurrentPercent:     tier.Percent,
		TotalSpent:         spend,
		AmountToNextLevel:  decimal.Max(next.Sub(spend), decimal.Zero),
		NextLevelThreshold: next,
		Tier:               tier.Name,
	}
}

// Amount returns subtotal * percent / 100 exactly. Shifting the decimal point
// keeps the scale at subtotal's plus percent's plus two, with no rounding.
func Amount(subtotal, percent decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(percent).Shift(-2)
}
