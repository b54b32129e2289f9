// Package pricing converts audio duration into a cost under the fixed
// per-minute rate. Pure functions only: the estimate shown before a charge
// and the amount actually charged go through the same math.
package pricing

import "github.com/shopspring/decimal"

// Estimate is the outcome of pricing one duration against a wallet state.
type Estimate struct {
	// BilledMinutes is the duration rounded up to whole minutes. Non-zero
	// audio is never billed as zero minutes.
	BilledMinutes decimal.Decimal
	// DemoMinutesApplied is how much of the allowance this charge consumes.
	DemoMinutesApplied decimal.Decimal
	// Cost is what the balance will be debited after demo minutes.
	Cost decimal.Decimal
}

// EstimateCost prices durationMinutes given the caller's remaining demo
// allowance and rate per minute. Demo minutes are consumed first, in full,
// before any balance is charged.
func EstimateCost(durationMinutes, demoMinutesRemaining, ratePerMinute decimal.Decimal) Estimate {
	billed := durationMinutes.Ceil()
	if billed.IsNegative() {
		billed = decimal.Zero
	}
	if billed.IsZero() && durationMinutes.IsPositive() {
		billed = decimal.NewFromInt(1)
	}

	demoApplied := decimal.Min(billed, demoMinutesRemaining)
	if demoApplied.IsNegative() {
		demoApplied = decimal.Zero
	}

	billable := billed.Sub(demoApplied)
	cost := billable.Mul(ratePerMinute).Round(2)
	if cost.IsNegative() {
		cost = decimal.Zero
	}

	return Estimate{
		BilledMinutes:      billed,
		DemoMinutesApplied: demoApplied,
		Cost:               cost,
	}
}
