// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatIndianCurrency formats a rupee amount with lakh/crore digit grouping.
// Negative amounts read -₹1,234.56.
func FormatIndianCurrency(amount float64) string {
	if roundsNegative(amount) {
		return "-₹" + FormatIndianNumber(-amount)
	}
	return "₹" + FormatIndianNumber(math.Abs(amount))
}

// roundsNegative reports whether amount is still negative at two decimals.
func roundsNegative(amount float64) bool {
	return math.Round(amount*100) < 0
}

// FormatIndianNumber formats a number with two decimals and Indian digit grouping
// (1,00,00,000 rather than 10,000,000).
func FormatIndianNumber(amount float64) string {
	negative := roundsNegative(amount)
	amount = math.Abs(amount)

	str := fmt.Sprintf("%.2f", amount)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := groupIndian(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

func groupIndian(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatPercent formats a fraction (0.125) as a signed percentage (+12.50%).
func FormatPercent(fraction float64) string {
	value := fraction * 100
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatIndianCurrency(pnl)
	if math.Round(pnl*100) > 0 {
		return "+" + formatted
	}
	return formatted
}
