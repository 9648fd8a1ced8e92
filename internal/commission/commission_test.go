package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradecore/exchange-api/internal/money"
)

func TestCalculate(t *testing.T) {
	// 1.5% of 50000 is 750
	got := Calculate(money.MustParse("50000"))
	assert.Equal(t, "750.00000000", money.Format(got))

	got = Calculate(money.MustParse("100"))
	assert.Equal(t, "1.50000000", money.Format(got))
}

func TestCalculateTruncates(t *testing.T) {
	// 0.00000001 * 0.015 truncates to zero
	got := Calculate(money.MustParse("0.00000001"))
	assert.True(t, got.IsZero())

	// 0.00000067 * 0.015 = 0.00000001005 -> 0.00000001
	got = Calculate(money.MustParse("0.00000067"))
	assert.Equal(t, "0.00000001", money.Format(got))
}

func TestTotalWithCommission(t *testing.T) {
	volume := money.MustParse("50000")
	total := TotalWithCommission(volume)
	assert.Equal(t, "50750.00000000", money.Format(total))

	// total - commission round-trips back to the volume
	assert.True(t, money.Sub(total, Calculate(volume)).Equal(volume))
}

func TestNetAmount(t *testing.T) {
	got := NetAmount(money.MustParse("50000"))
	assert.Equal(t, "49250.00000000", money.Format(got))
}

func TestRate(t *testing.T) {
	assert.Equal(t, "0.015", Rate().String())
	assert.Equal(t, "1.5", RatePercent().String())
}
