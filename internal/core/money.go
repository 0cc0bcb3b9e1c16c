// Package core holds the meal budget domain: expenses, settings, the week
// window resolver and the weekly aggregation engine.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxAmount is the largest amount a single expense or per-person limit may
// hold. Sums of any realistic number of records stay far inside int64.
const MaxAmount int64 = 1_000_000_000

// ParseAmount converts user input into whole currency units.
//
// Amounts are non-negative integers. Surrounding whitespace and a trailing
// ".0"/",0" fraction are tolerated; any other fraction is rejected so that
// stored values stay exact.
//
// Examples:
//
//	ParseAmount("120")   -> 120, nil
//	ParseAmount("120.0") -> 120, nil
//	ParseAmount("-5")    -> 0, ErrNegativeAmount
//	ParseAmount("12.5")  -> 0, ErrInvalidAmount
//	ParseAmount("2000000000") -> 0, ErrInvalidAmount (above MaxAmount)
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAmount
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, ",", ".")
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if hasFrac && strings.Trim(fracPart, "0") != "" {
		return 0, fmt.Errorf("%w: fractional amounts are not supported", ErrInvalidAmount)
	}
	if intPart == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || v > MaxAmount {
		return 0, fmt.Errorf("%w: must be at most %d", ErrInvalidAmount, MaxAmount)
	}
	return v, nil
}
