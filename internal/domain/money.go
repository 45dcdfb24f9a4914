package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponent converts kobo to naira
const minorUnitExponent = -2

// MinorToMajor converts an amount in minor units to a decimal in major units
func MinorToMajor(amountMinor int64) decimal.Decimal {
	return decimal.New(amountMinor, minorUnitExponent)
}

// FormatMinor renders an amount in minor units with two decimal places, e.g. 500000 -> "5000.00"
func FormatMinor(amountMinor int64) string {
	return MinorToMajor(amountMinor).StringFixed(2)
}

// ParseMajor parses an amount in major units, e.g. "5000" or "5,000.50", into minor units.
// More than two decimal places is rejected rather than rounded, as is anything above MaxAmountMinor.
func ParseMajor(raw string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Msg: "amount must be a number"}
	}

	minor := amount.Shift(-minorUnitExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, &ValidationError{Field: "amount", Msg: "amount can have at most two decimal places"}
	}
	if !minor.IsPositive() {
		return 0, &ValidationError{Field: "amount", Msg: "amount must be greater than zero"}
	}
	if minor.GreaterThan(decimal.NewFromInt(MaxAmountMinor)) {
		return 0, &ValidationError{Field: "amount", Msg: "amount is too large"}
	}
	return minor.IntPart(), nil
}
