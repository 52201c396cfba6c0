package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		currency string
		units    int64
		wantErr  bool
	}{
		{name: "two decimals", input: "12.34", currency: "USD", units: 1234},
		{name: "whole amount", input: "100", currency: "USD", units: 10000},
		{name: "zero", input: "0", currency: "USD", units: 0},
		{name: "zero-decimal currency", input: "500", currency: "JPY", units: 500},
		{name: "three-decimal currency", input: "1.234", currency: "KWD", units: 1234},
		{name: "too much precision", input: "1.005", currency: "USD", wantErr: true},
		{name: "garbage", input: "abc", currency: "USD", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FromString(tt.input, tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.units, m.Units())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestArithmetic(t *testing.T) {
	a := New(1050, "USD")
	b := New(250, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), sum.Units())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(800), diff.Units())

	_, err = a.Add(New(100, "EUR"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.Equal(t, int64(-1050), a.Neg().Units())
	assert.Equal(t, int64(1050), a.Neg().Abs().Units())
	assert.True(t, New(0, "USD").IsZero())
	assert.True(t, a.Neg().IsNegative())
}

func TestString(t *testing.T) {
	assert.Equal(t, "12.34", New(1234, "USD").String())
	assert.Equal(t, "0.05", New(5, "USD").String())
	assert.Equal(t, "-3.50", New(-350, "USD").String())
	assert.Equal(t, "500", New(500, "JPY").String())
	assert.Equal(t, "1.234", New(1234, "KWD").String())
}

func TestSplitEqual(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		n     int
		want  []int64
	}{
		{name: "even division", total: 9000, n: 2, want: []int64{4500, 4500}},
		{name: "remainder to first", total: 10000, n: 3, want: []int64{3334, 3333, 3333}},
		{name: "two extra units", total: 1001, n: 3, want: []int64{334, 334, 333}},
		{name: "single participant", total: 777, n: 1, want: []int64{777}},
		{name: "zero total", total: 0, n: 4, want: []int64{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := New(tt.total, "USD").SplitEqual(tt.n)
			require.NoError(t, err)

			var sum int64
			got := make([]int64, len(shares))
			for i, s := range shares {
				got[i] = s.Units()
				sum += s.Units()
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, sum, "shares must sum to the total")
		})
	}

	_, err := New(100, "USD").SplitEqual(0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAllocate(t *testing.T) {
	pct := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	tests := []struct {
		name        string
		total       int64
		percentages []decimal.Decimal
		want        []int64
	}{
		{
			name:        "fifty fifty",
			total:       9000,
			percentages: []decimal.Decimal{pct("50"), pct("50")},
			want:        []int64{4500, 4500},
		},
		{
			name:        "exact thirds",
			total:       10000,
			percentages: []decimal.Decimal{pct("33.33"), pct("33.33"), pct("33.34")},
			want:        []int64{3333, 3333, 3334},
		},
		{
			name:        "remainder tops up first share",
			total:       10000,
			percentages: []decimal.Decimal{pct("33.33"), pct("33.33"), pct("33.33")},
			want:        []int64{3334, 3333, 3333},
		},
		{
			name:        "uneven weights",
			total:       10000,
			percentages: []decimal.Decimal{pct("70"), pct("20"), pct("10")},
			want:        []int64{7000, 2000, 1000},
		},
		{
			name:        "zero weight participant",
			total:       5000,
			percentages: []decimal.Decimal{pct("100"), pct("0")},
			want:        []int64{5000, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := New(tt.total, "USD").Allocate(tt.percentages)
			require.NoError(t, err)

			var sum int64
			got := make([]int64, len(shares))
			for i, s := range shares {
				got[i] = s.Units()
				sum += s.Units()
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, sum, "allocated shares must sum to the total")
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	out, err := New(4500, "USD").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"45.00"`, string(out))
}
