package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTokenAmount(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	tests := []struct {
		name     string
		raw      any
		decimals int
		opts     []FormatOption
		want     string
	}{
		{name: "six decimals", raw: 1234567, decimals: 6, want: "1.234567"},
		{name: "trailing zeros trimmed", raw: 1000000, decimals: 6, want: "1"},
		{name: "negative", raw: -500000, decimals: 6, want: "-0.5"},
		{name: "zero decimals", raw: int64(42), decimals: 0, want: "42"},
		{name: "integer text", raw: " 2500000000000000000 ", decimals: 18, want: "2.5"},
		{name: "negative text", raw: "-1", decimals: 2, want: "-0.01"},
		{name: "truncates not rounds", raw: 1999999, decimals: 6, opts: []FormatOption{WithMaxFractionDigits(2)}, want: "1.99"},
		{name: "keep trailing zeros", raw: 1500000, decimals: 6, opts: []FormatOption{WithTrailingZeros()}, want: "1.500000"},
		{name: "no fraction digits", raw: 1999999, decimals: 6, opts: []FormatOption{WithMaxFractionDigits(0)}, want: "1"},
		{name: "grouping", raw: huge, decimals: 18, want: "123,456,789,012.345678"},
		{name: "without grouping", raw: huge, decimals: 18, opts: []FormatOption{WithoutGrouping()}, want: "123456789012.345678"},
		{name: "uint64", raw: uint64(math.MaxUint64), decimals: 0, opts: []FormatOption{WithoutGrouping()}, want: "18446744073709551615"},
		{name: "negative truncated to zero keeps sign", raw: -1, decimals: 6, opts: []FormatOption{WithMaxFractionDigits(2)}, want: "-0"},
		{name: "max decimals", raw: 1, decimals: 255, opts: []FormatOption{WithMaxFractionDigits(3)}, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatTokenAmount(tt.raw, tt.decimals, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTokenAmountDoesNotMutateInput(t *testing.T) {
	raw := big.NewInt(-123)
	_, err := FormatTokenAmount(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-123), raw.Int64())
}

func TestFormatTokenAmountRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		decimals int
		wantErr  error
	}{
		{name: "fractional text", raw: "12.5", decimals: 6, wantErr: ErrInvalidAmount},
		{name: "empty text", raw: "", decimals: 6, wantErr: ErrInvalidAmount},
		{name: "hex text", raw: "0x10", decimals: 6, wantErr: ErrInvalidAmount},
		{name: "float input", raw: 1.5, decimals: 6, wantErr: ErrInvalidAmount},
		{name: "nil big int", raw: (*big.Int)(nil), decimals: 6, wantErr: ErrInvalidAmount},
		{name: "decimals too large", raw: 1, decimals: 256, wantErr: ErrInvalidDecimals},
		{name: "negative decimals", raw: 1, decimals: -1, wantErr: ErrInvalidDecimals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatTokenAmount(tt.raw, tt.decimals)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, got)
		})
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		value  float64
		digits int
		want   string
	}{
		{value: 4500, digits: 2, want: "$4,500.00"},
		{value: 1234.5, digits: 2, want: "$1,234.50"},
		{value: 1234.567, digits: 2, want: "$1,234.57"},
		{value: -0.5, digits: 2, want: "-$0.50"},
		{value: 0.123456, digits: 4, want: "$0.1235"},
		{value: 0.1, digits: 4, want: "$0.10"},
		{value: 1999.99, digits: 0, want: "$2,000"},
		{value: -0.001, digits: 2, want: "$0.00"},
	}

	for _, tt := range tests {
		got, err := FormatUSD(tt.value, tt.digits)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "FormatUSD(%v, %d)", tt.value, tt.digits)
	}
}

func TestFormatUSDRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FormatUSD(v, 2)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}

	_, err := FormatUSD(1, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
