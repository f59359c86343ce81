package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukahub/paybill-core/internal/cart"
	"github.com/dukahub/paybill-core/internal/inventory"
	"github.com/dukahub/paybill-core/internal/payments"
)

var ErrNotFound = errors.New("order not found")

type Repo struct{ DB *pgxpool.Pool }

type CreateParams struct {
	UserID          string
	Snapshot        *cart.Snapshot
	Totals          Totals
	PhoneNumber     string
	DeliveryAddress string
	Shortcode       string
	AccountRef      string
}

// CreateFromCart runs the whole reservation as one atomic unit: order +
// line items + status history, a stock decrement per line, cart clear
// and the pending payment row. Any insufficient-stock rejection rolls
// the entire transaction back, leaving no partial state.
func (r *Repo) CreateFromCart(ctx context.Context, p CreateParams) (*Order, *payments.Payment, error) {
	if err := p.Totals.Check(); err != nil {
		return nil, nil, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order := &Order{
		OrderNumber:     uuid.NewString(),
		UserID:          p.UserID,
		Status:          StatusPending,
		PaymentStatus:   PayStatePending,
		PhoneNumber:     p.PhoneNumber,
		DeliveryAddress: p.DeliveryAddress,
		Totals:          p.Totals,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(order_number, user_id, status, payment_status,
			phone_number, delivery_address,
			subtotal_cents, shipping_cents, tax_cents, discount_cents, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.OrderNumber, order.UserID, order.Status, order.PaymentStatus,
		order.PhoneNumber, order.DeliveryAddress,
		p.Totals.SubtotalCents, p.Totals.ShippingCents, p.Totals.TaxCents,
		p.Totals.DiscountCents, p.Totals.TotalCents)
	if err != nil {
		return nil, nil, err
	}

	for _, l := range p.Snapshot.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_number, product_id, variant_id, name, sku, qty, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.OrderNumber, l.ProductID, l.VariantID, l.Name, l.SKU, l.Qty, l.UnitPriceCents)
		if err != nil {
			return nil, nil, err
		}
		if err := inventory.Reserve(ctx, tx, l.ProductID, l.VariantID, l.Qty); err != nil {
			return nil, nil, err
		}
		order.Items = append(order.Items, Item{
			OrderNumber:    order.OrderNumber,
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			Name:           l.Name,
			SKU:            l.SKU,
			Qty:            l.Qty,
			UnitPriceCents: l.UnitPriceCents,
		})
	}

	if err := cart.ClearTx(ctx, tx, p.Snapshot.CartID); err != nil {
		return nil, nil, err
	}

	pay := &payments.Payment{
		ID:                payments.NewID(),
		OrderNumber:       order.OrderNumber,
		PhoneNumber:       p.PhoneNumber,
		AmountCents:       p.Totals.TotalCents,
		BusinessShortcode: p.Shortcode,
		AccountReference:  p.AccountRef,
		Status:            payments.StatusPending,
	}
	if err := payments.CreateTx(ctx, tx, pay); err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history(order_number, status, note, actor)
		VALUES ($1, 'pending', 'order placed', $2)`,
		order.OrderNumber, p.UserID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return order, pay, nil
}

// ByNumberForUser loads an order with its items, scoped to the owning
// user so one account can never read another's orders.
func (r *Repo) ByNumberForUser(ctx context.Context, orderNumber, userID string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT order_number, user_id, status, payment_status, phone_number, delivery_address,
		       subtotal_cents, shipping_cents, tax_cents, discount_cents, total_cents,
		       created_at, updated_at
		FROM orders WHERE order_number = $1 AND user_id = $2`,
		orderNumber, userID).Scan(
		&o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus, &o.PhoneNumber, &o.DeliveryAddress,
		&o.Totals.SubtotalCents, &o.Totals.ShippingCents, &o.Totals.TaxCents,
		&o.Totals.DiscountCents, &o.Totals.TotalCents,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, variant_id, name, sku, qty, unit_price_cents
		FROM order_items WHERE order_number = $1 ORDER BY id`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it := Item{OrderNumber: orderNumber}
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Name, &it.SKU, &it.Qty, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_number, user_id, status, payment_status, phone_number, delivery_address,
		       subtotal_cents, shipping_cents, tax_cents, discount_cents, total_cents,
		       created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus, &o.PhoneNumber, &o.DeliveryAddress,
			&o.Totals.SubtotalCents, &o.Totals.ShippingCents, &o.Totals.TaxCents,
			&o.Totals.DiscountCents, &o.Totals.TotalCents,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) History(ctx context.Context, orderNumber string) ([]HistoryEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_number, status, COALESCE(note, ''), actor, created_at
		FROM order_status_history WHERE order_number = $1 ORDER BY id`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.OrderNumber, &h.Status, &h.Note, &h.Actor, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
