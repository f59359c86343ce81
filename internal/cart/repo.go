package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// Snapshot reads the user's cart joined with the live catalog. Returns
// an empty snapshot (not an error) when the user has no cart yet.
func (r *Repo) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	var cartID string
	err := r.DB.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Snapshot{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT ci.product_id, ci.variant_id, p.name, p.sku, p.price_cents, ci.qty
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &Snapshot{CartID: cartID, UserID: userID}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.Name, &l.SKU, &l.UnitPriceCents, &l.Qty); err != nil {
			return nil, err
		}
		snap.Items = append(snap.Items, l)
	}
	return snap, rows.Err()
}

// AddItem upserts a cart line. The unique (cart_id, product_id,
// variant_id) constraint turns concurrent adds into a single atomic
// quantity bump.
func (r *Repo) AddItem(ctx context.Context, userID, productID string, variantID *string, qty int) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cartID string
	err = tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		cartID = uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO carts(id, user_id) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING`, cartID, userID); err != nil {
			return err
		}
		// lost the race: re-read whichever row won
		if err := tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&cartID); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, variant_id, qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id, variant_id)
		DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty`,
		cartID, productID, variantID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ClearTx empties a cart inside the caller's checkout transaction.
func ClearTx(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}
