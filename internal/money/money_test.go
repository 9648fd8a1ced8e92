package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulTruncates(t *testing.T) {
	// 0.00000001 * 0.1 is below the smallest representable quantity and
	// truncates to zero rather than rounding up.
	got := Mul(MustParse("0.00000001"), MustParse("0.1"))
	assert.True(t, got.IsZero(), "got %s", got)

	got = Mul(MustParse("0.33333333"), MustParse("3"))
	assert.Equal(t, "0.99999999", got.String())
}

func TestMulExact(t *testing.T) {
	got := Mul(MustParse("50000"), MustParse("1.5"))
	assert.Equal(t, "75000.00000000", Format(got))
}

func TestAddSub(t *testing.T) {
	a := MustParse("100.00000001")
	b := MustParse("0.00000002")

	assert.Equal(t, "100.00000003", Add(a, b).String())
	assert.Equal(t, "99.99999999", Sub(a, b).String())
}

func TestParse(t *testing.T) {
	d, err := Parse("50000.12345678")
	require.NoError(t, err)
	assert.Equal(t, "50000.12345678", d.String())

	_, err = Parse("0.123456789")
	assert.Error(t, err, "nine decimal places must be rejected")

	_, err = Parse("not-a-number")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestParseNegative(t *testing.T) {
	// Negative values parse; callers reject them where sign matters.
	d, err := Parse("-5")
	require.NoError(t, err)
	assert.True(t, d.IsNegative())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "750.00000000", Format(MustParse("750")))
	assert.Equal(t, "0.00000001", Format(MustParse("0.00000001")))
	assert.Equal(t, "50000.50000000", Format(MustParse("50000.5")))
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
}
