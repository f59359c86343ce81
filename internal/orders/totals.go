package orders

import "errors"

var ErrTotalsMismatch = errors.New("order totals do not add up")

// Totals in integer cents. Total must equal
// subtotal + shipping + tax - discount; checked at order creation.
type Totals struct {
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	DiscountCents int64
	TotalCents    int64
}

func (t Totals) Check() error {
	if t.TotalCents != t.SubtotalCents+t.ShippingCents+t.TaxCents-t.DiscountCents {
		return ErrTotalsMismatch
	}
	return nil
}
