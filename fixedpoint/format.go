package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for raw amounts that are not integers.
	ErrInvalidAmount = errors.New("invalid raw amount")
	// ErrInvalidDecimals is returned for decimal exponents outside [0, 255].
	ErrInvalidDecimals = errors.New("decimals must be an integer in [0, 255]")
	// ErrInvalidValue is returned for values that cannot be displayed (NaN, Inf, bad digit counts).
	ErrInvalidValue = errors.New("invalid display value")
)

const (
	MaxDecimals              = 255
	DefaultMaxFractionDigits = 6
	DefaultUSDFractionDigits = 2
)

var integerText = regexp.MustCompile(`^-?\d+$`)

type formatOptions struct {
	maxFractionDigits int
	trimTrailingZeros bool
	useGrouping       bool
}

// FormatOption adjusts FormatTokenAmount output.
type FormatOption func(*formatOptions)

// WithMaxFractionDigits caps the number of fraction digits shown. Extra digits are truncated.
func WithMaxFractionDigits(n int) FormatOption {
	return func(o *formatOptions) { o.maxFractionDigits = n }
}

// WithTrailingZeros keeps trailing zero fraction digits.
func WithTrailingZeros() FormatOption {
	return func(o *formatOptions) { o.trimTrailingZeros = false }
}

// WithoutGrouping disables thousands separators in the whole part.
func WithoutGrouping() FormatOption {
	return func(o *formatOptions) { o.useGrouping = false }
}

// ParseRaw strictly converts an integer-typed value or integer text into a big.Int.
func ParseRaw(raw any) (*big.Int, error) {
	switch v := raw.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("%w: nil big.Int", ErrInvalidAmount)
		}
		return new(big.Int).Set(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if !integerText.MatchString(s) {
			return nil, fmt.Errorf("%w: %q is not an integer string", ErrInvalidAmount, v)
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, raw)
	}
}

// FormatTokenAmount renders raw token units scaled by 10^decimals.
//
// Fraction digits beyond the configured maximum are truncated, never rounded.
// Defaults: 6 fraction digits, trailing zeros trimmed, whole part grouped.
func FormatTokenAmount(raw any, decimals int, opts ...FormatOption) (string, error) {
	o := formatOptions{
		maxFractionDigits: DefaultMaxFractionDigits,
		trimTrailingZeros: true,
		useGrouping:       true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if decimals < 0 || decimals > MaxDecimals {
		return "", fmt.Errorf("%w: got %d", ErrInvalidDecimals, decimals)
	}
	if o.maxFractionDigits < 0 {
		return "", fmt.Errorf("%w: negative fraction digits %d", ErrInvalidValue, o.maxFractionDigits)
	}

	x, err := ParseRaw(raw)
	if err != nil {
		return "", err
	}

	negative := x.Sign() < 0
	x.Abs(x)

	whole, frac := new(big.Int).QuoRem(x, Pow10(uint(decimals)), new(big.Int))

	wholeStr := whole.String()
	if o.useGrouping {
		wholeStr = humanize.BigComma(whole)
	}

	out := wholeStr
	if decimals > 0 && o.maxFractionDigits > 0 {
		fracStr := frac.String()
		fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
		if len(fracStr) > o.maxFractionDigits {
			fracStr = fracStr[:o.maxFractionDigits]
		}
		if o.trimTrailingZeros {
			fracStr = strings.TrimRight(fracStr, "0")
		}
		if fracStr != "" {
			out = wholeStr + "." + fracStr
		}
	}

	// The sign survives truncation, e.g. -1 at 6 decimals with 2 digits is "-0".
	if negative {
		out = "-" + out
	}
	return out, nil
}

// FormatUSD renders a float as en-US currency, e.g. $1,234.50.
//
// At least min(2, maxFractionDigits) fraction digits are shown and the value is
// rounded half away from zero to maxFractionDigits.
func FormatUSD(value float64, maxFractionDigits int) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}
	if maxFractionDigits < 0 {
		return "", fmt.Errorf("%w: negative fraction digits %d", ErrInvalidValue, maxFractionDigits)
	}

	d := decimal.NewFromFloat(value).Round(int32(maxFractionDigits))
	negative := d.IsNegative()
	d = d.Abs()

	fixed := d.StringFixed(int32(maxFractionDigits))
	wholeStr, fracStr, _ := strings.Cut(fixed, ".")

	minDigits := DefaultUSDFractionDigits
	if maxFractionDigits < minDigits {
		minDigits = maxFractionDigits
	}
	for len(fracStr) > minDigits && strings.HasSuffix(fracStr, "0") {
		fracStr = fracStr[:len(fracStr)-1]
	}

	whole, ok := new(big.Int).SetString(wholeStr, 10)
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}

	out := "$" + humanize.BigComma(whole)
	if fracStr != "" {
		out += "." + fracStr
	}
	if negative {
		out = "-" + out
	}
	return out, nil
}
