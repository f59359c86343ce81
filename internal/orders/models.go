package orders

import "time"

type Product struct {
	ID         string
	SKU        string
	Name       string
	Stock      int
	PriceCents int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Order struct {
	OrderNumber     string
	UserID          string
	Status          Status // see status.go
	PaymentStatus   PaymentState
	PhoneNumber     string
	DeliveryAddress string
	Totals          Totals
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item carries a snapshot of the product at order time. Name, SKU and
// unit price are copied from the catalog so later edits never change
// historical orders.
type Item struct {
	ID             int64
	OrderNumber    string
	ProductID      string
	VariantID      *string
	Name           string
	SKU            string
	Qty            int
	UnitPriceCents int64
}

func (it Item) SubtotalCents() int64 { return int64(it.Qty) * it.UnitPriceCents }

// HistoryEntry is one row of the append-only order status log.
type HistoryEntry struct {
	ID          int64
	OrderNumber string
	Status      Status
	Note        string
	Actor       string
	At          time.Time
}
