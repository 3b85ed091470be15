// Package id parses CLI amount inputs into base units.
package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount resolves exactly one of a base-unit string or a decimal string
// into base units. Decimals is the token's precision.
func ParseAmount(baseUnits, decimal string, decimals int) (*big.Int, error) {
	if baseUnits != "" && decimal != "" {
		return nil, clierr.New(clierr.CodeUsage, "use either --amount or --amount-decimal, not both")
	}
	if baseUnits == "" && decimal == "" {
		return nil, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}

	if baseUnits != "" {
		n, ok := new(big.Int).SetString(baseUnits, 10)
		if !ok || n.Sign() < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--amount must be a non-negative integer string")
		}
		return n, nil
	}

	if !decimalPattern.MatchString(decimal) {
		return nil, clierr.New(clierr.CodeUsage, "--amount-decimal must be in decimal form like 1.23")
	}
	return decimalToBaseUnits(decimal, decimals)
}

func decimalToBaseUnits(decimal string, decimals int) (*big.Int, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	combined := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined = strings.TrimLeft(combined, "0")
	if combined == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	return n, nil
}

// FormatDecimal renders base units as a decimal string for display.
func FormatDecimal(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	s := baseUnits.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		intPart := s[:len(s)-decimals]
		fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
		if fracPart == "" {
			s = intPart
		} else {
			s = intPart + "." + fracPart
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}
