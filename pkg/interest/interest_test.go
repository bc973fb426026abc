package interest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		months    string
		interest  string
		total     string
	}{
		{
			name:      "standard monthly quote",
			principal: "50000", rate: "15", months: "1",
			interest: "7500", total: "57500",
		},
		{
			name:      "multi month",
			principal: "10000", rate: "5", months: "6",
			interest: "3000", total: "13000",
		},
		{
			name:      "fractional duration from weekly product",
			principal: "10000", rate: "8", months: "0.75",
			interest: "600", total: "10600",
		},
		{
			name:      "rounds interest to 2dp",
			principal: "100", rate: "1.2345", months: "1",
			interest: "1.23", total: "101.23",
		},
		{
			name:      "half rounds away from zero",
			principal: "100", rate: "1.235", months: "1",
			interest: "1.24", total: "101.24",
		},
		{
			name:      "zero principal",
			principal: "0", rate: "15", months: "12",
			interest: "0", total: "0",
		},
		{
			name:      "zero rate",
			principal: "50000", rate: "0", months: "12",
			interest: "0", total: "50000",
		},
		{
			name:      "zero duration",
			principal: "50000", rate: "15", months: "0",
			interest: "0", total: "50000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Calculate(dec(tt.principal), dec(tt.rate), dec(tt.months))
			assert.True(t, q.Interest.Equal(dec(tt.interest)), "interest: expected %s, got %s", tt.interest, q.Interest)
			assert.True(t, q.Total.Equal(dec(tt.total)), "total: expected %s, got %s", tt.total, q.Total)
			assert.True(t, q.Total.Equal(q.Principal.Add(q.Interest)), "total must equal principal + interest")
		})
	}
}

func TestCalculateClampsNegativeInputs(t *testing.T) {
	t.Run("negative principal behaves as zero", func(t *testing.T) {
		got := Calculate(dec("-50000"), dec("15"), dec("1"))
		want := Calculate(decimal.Zero, dec("15"), dec("1"))
		assert.Equal(t, want, got)
		assert.True(t, got.Principal.IsZero())
	})

	t.Run("negative rate behaves as zero", func(t *testing.T) {
		got := Calculate(dec("50000"), dec("-15"), dec("1"))
		want := Calculate(dec("50000"), decimal.Zero, dec("1"))
		assert.Equal(t, want, got)
		assert.True(t, got.Interest.IsZero())
	})

	t.Run("negative duration behaves as zero", func(t *testing.T) {
		got := Calculate(dec("50000"), dec("15"), dec("-3"))
		want := Calculate(dec("50000"), dec("15"), decimal.Zero)
		assert.Equal(t, want, got)
		assert.True(t, got.Total.Equal(dec("50000")))
	})
}
