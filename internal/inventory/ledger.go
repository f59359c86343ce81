package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// The ledger is mutated from two call sites: checkout reservation and
// callback/compensation restore. Every mutation is a single conditional
// UPDATE so concurrent checkouts for the same product stay correct
// without application-level read-modify-write.

var ErrProductNotFound = errors.New("product not found")

type InsufficientStockError struct {
	ProductID string
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("insufficient stock for product %s variant %s: requested %d, available %d",
			e.ProductID, e.VariantID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Reserve decrements stock inside the caller's transaction. When the
// line names a variant that is tracked separately the variant row is the
// ledger; an untracked variant falls back to the base product's stock.
func Reserve(ctx context.Context, tx pgx.Tx, productID string, variantID *string, qty int) error {
	if variantID != nil && *variantID != "" {
		ct, err := tx.Exec(ctx, `
			UPDATE product_variants SET stock = stock - $3, updated_at = now()
			WHERE product_id = $1 AND id = $2 AND stock >= $3`,
			productID, *variantID, qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 1 {
			return nil
		}
		var available int
		err = tx.QueryRow(ctx, `SELECT stock FROM product_variants WHERE product_id = $1 AND id = $2`,
			productID, *variantID).Scan(&available)
		if err == nil {
			return &InsufficientStockError{ProductID: productID, VariantID: *variantID, Requested: qty, Available: available}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		// variant not tracked separately: fall through to the base product
	}

	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var available int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return err
	}
	return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
}

// Restore credits stock back, mirroring Reserve's variant fallback.
func Restore(ctx context.Context, tx pgx.Tx, productID string, variantID *string, qty int) error {
	if variantID != nil && *variantID != "" {
		ct, err := tx.Exec(ctx, `
			UPDATE product_variants SET stock = stock + $3, updated_at = now()
			WHERE product_id = $1 AND id = $2`,
			productID, *variantID, qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 1 {
			return nil
		}
	}
	_, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`,
		productID, qty)
	return err
}

// RestoreOrder credits back every line item of an order. Used by the
// callback failure path and by push-failure compensation.
func RestoreOrder(ctx context.Context, tx pgx.Tx, orderNumber string) error {
	rows, err := tx.Query(ctx, `
		SELECT product_id, variant_id, qty FROM order_items WHERE order_number = $1`,
		orderNumber)
	if err != nil {
		return err
	}
	type line struct {
		productID string
		variantID *string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.variantID, &l.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		if err := Restore(ctx, tx, l.productID, l.variantID, l.qty); err != nil {
			return err
		}
	}
	return nil
}
