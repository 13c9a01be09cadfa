package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{
		{name: "ten percent", amount: "1000.00", rate: "10.00", want: "100"},
		{name: "fractional rate", amount: "199.99", rate: "12.5", want: "25"},
		{name: "half to even down", amount: "0.25", rate: "10", want: "0.02"},
		{name: "half to even up", amount: "0.35", rate: "10", want: "0.04"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Percent(MustParse(tc.amount), MustParse(tc.rate))
			assert.True(t, got.Equal(MustParse(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestParse(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
	_, err = Parse("12,00")
	require.Error(t, err)

	d, err := Parse(" 42.10 ")
	require.NoError(t, err)
	assert.Equal(t, "42.10", Format(d))
}

func TestSumAndFormat(t *testing.T) {
	total := Sum(MustParse("1.10"), MustParse("2.20"), decimal.NewFromInt(3))
	assert.Equal(t, "6.30", Format(total))
	assert.Equal(t, "0.00", Format(Zero))
}
