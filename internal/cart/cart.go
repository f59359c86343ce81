package cart

// Snapshot is an immutable view of a cart at checkout time. Prices and
// catalog fields are captured when the snapshot is read; the order is
// seeded from the snapshot, never from the live catalog.
type Snapshot struct {
	CartID string
	UserID string
	Items  []Line
}

type Line struct {
	ProductID      string
	VariantID      *string
	Name           string
	SKU            string
	UnitPriceCents int64
	Qty            int
}

func (l Line) SubtotalCents() int64 { return int64(l.Qty) * l.UnitPriceCents }

func (s *Snapshot) Empty() bool { return s == nil || len(s.Items) == 0 }

func (s *Snapshot) SubtotalCents() int64 {
	var total int64
	for _, l := range s.Items {
		total += l.SubtotalCents()
	}
	return total
}
