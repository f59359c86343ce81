package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalsCheck(t *testing.T) {
	ok := Totals{SubtotalCents: 100000, ShippingCents: 20000, TaxCents: 16000, TotalCents: 136000}
	require.NoError(t, ok.Check())

	withDiscount := Totals{SubtotalCents: 100000, ShippingCents: 20000, TaxCents: 16000, DiscountCents: 6000, TotalCents: 130000}
	require.NoError(t, withDiscount.Check())

	bad := Totals{SubtotalCents: 100000, TotalCents: 100001}
	assert.ErrorIs(t, bad.Check(), ErrTotalsMismatch)
}
