package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukahub/paybill-core/internal/inventory"
)

var ErrNotFound = errors.New("payment not found")

// Outcome of a conditional pending-to-terminal transition.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyFinal
	OutcomeNotFound
)

type Repo struct{ DB *pgxpool.Pool }

// CreateTx inserts the payment row inside the checkout transaction.
func CreateTx(ctx context.Context, tx pgx.Tx, p *Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments(id, order_number, phone_number, amount_cents,
			business_shortcode, account_reference, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		p.ID, p.OrderNumber, p.PhoneNumber, p.AmountCents,
		p.BusinessShortcode, p.AccountReference)
	return err
}

// AttachGatewayIDs stores the correlation identifiers from a successful
// push acknowledgment. Only a still-pending payment can be addressed.
func (r *Repo) AttachGatewayIDs(ctx context.Context, orderNumber, merchantRequestID, checkoutRequestID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments
		SET merchant_request_id = $2, checkout_request_id = $3, updated_at = now()
		WHERE order_number = $1 AND status = 'pending'`,
		orderNumber, merchantRequestID, checkoutRequestID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("attach gateway ids: %w for order %s", ErrNotFound, orderNumber)
	}
	return nil
}

func (r *Repo) ByCheckoutID(ctx context.Context, checkoutRequestID string) (*Payment, error) {
	return r.scanOne(ctx, `WHERE checkout_request_id = $1`, checkoutRequestID)
}

func (r *Repo) ByOrder(ctx context.Context, orderNumber string) (*Payment, error) {
	return r.scanOne(ctx, `WHERE order_number = $1`, orderNumber)
}

func (r *Repo) scanOne(ctx context.Context, where string, arg any) (*Payment, error) {
	var p Payment
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_number, phone_number, amount_cents, business_shortcode,
		       account_reference, merchant_request_id, checkout_request_id,
		       receipt_number, transaction_date, status,
		       COALESCE(result_code, ''), COALESCE(result_description, ''),
		       created_at, updated_at
		FROM payments `+where, arg).Scan(
		&p.ID, &p.OrderNumber, &p.PhoneNumber, &p.AmountCents, &p.BusinessShortcode,
		&p.AccountReference, &p.MerchantRequestID, &p.CheckoutRequestID,
		&p.ReceiptNumber, &p.TransactionDate, &p.Status,
		&p.ResultCode, &p.ResultDescription,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type Settlement struct {
	CheckoutRequestID string
	ResultCode        string
	ResultDescription string
	ReceiptNumber     string
	TransactionDate   *time.Time
}

// Settle applies the success transition pending -> completed and moves
// the order to processing/paid. The conditional UPDATE on status is the
// mutual-exclusion guard against duplicate callbacks: a replay finds no
// pending row and returns OutcomeAlreadyFinal without further mutation.
func (r *Repo) Settle(ctx context.Context, s Settlement) (Outcome, string, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OutcomeNotFound, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderNumber string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status = 'completed', result_code = $2, result_description = $3,
		    receipt_number = $4, transaction_date = $5, updated_at = now()
		WHERE checkout_request_id = $1 AND status = 'pending'
		RETURNING order_number`,
		s.CheckoutRequestID, s.ResultCode, s.ResultDescription,
		nullable(s.ReceiptNumber), s.TransactionDate).Scan(&orderNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missedTransition(ctx, s.CheckoutRequestID)
	}
	if err != nil {
		return OutcomeNotFound, "", err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = 'processing', payment_status = 'paid', updated_at = now()
		WHERE order_number = $1`, orderNumber); err != nil {
		return OutcomeNotFound, "", err
	}
	note := "payment received"
	if s.ReceiptNumber != "" {
		note = "payment received, receipt " + s.ReceiptNumber
	}
	if err := appendHistoryTx(ctx, tx, orderNumber, "processing", note, "mpesa-callback"); err != nil {
		return OutcomeNotFound, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeNotFound, "", err
	}
	return OutcomeApplied, orderNumber, nil
}

type Failure struct {
	CheckoutRequestID string
	ResultCode        string
	ResultDescription string
}

// Fail applies the failure/cancellation transition pending -> failed,
// cancels the order and restores stock for every line item, all in one
// transaction.
func (r *Repo) Fail(ctx context.Context, f Failure) (Outcome, string, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OutcomeNotFound, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderNumber string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status = 'failed', result_code = $2, result_description = $3, updated_at = now()
		WHERE checkout_request_id = $1 AND status = 'pending'
		RETURNING order_number`,
		f.CheckoutRequestID, f.ResultCode, f.ResultDescription).Scan(&orderNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missedTransition(ctx, f.CheckoutRequestID)
	}
	if err != nil {
		return OutcomeNotFound, "", err
	}

	if err := cancelOrderTx(ctx, tx, orderNumber, "payment failed: "+f.ResultDescription, "mpesa-callback"); err != nil {
		return OutcomeNotFound, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeNotFound, "", err
	}
	return OutcomeApplied, orderNumber, nil
}

// Abort is the push-failure/sweeper compensation path, keyed by order
// number: payment to the given terminal status, order cancelled, stock
// restored. It is a second corrective transaction; the order and audit
// rows from checkout stay visible. Returns false when the payment left
// pending concurrently and nothing was undone.
func (r *Repo) Abort(ctx context.Context, orderNumber, reason, actor string, to Status) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, result_description = $3, updated_at = now()
		WHERE order_number = $1 AND status = 'pending'`,
		orderNumber, string(to), reason)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		// already settled or failed concurrently; nothing to undo
		return false, nil
	}

	if err := cancelOrderTx(ctx, tx, orderNumber, reason, actor); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListStalePending returns order numbers of payments stuck in pending
// longer than the cutoff; the sweeper aborts them one by one.
func (r *Repo) ListStalePending(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_number FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repo) missedTransition(ctx context.Context, checkoutRequestID string) (Outcome, string, error) {
	var orderNumber, status string
	err := r.DB.QueryRow(ctx, `
		SELECT order_number, status FROM payments WHERE checkout_request_id = $1`,
		checkoutRequestID).Scan(&orderNumber, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeNotFound, "", nil
	}
	if err != nil {
		return OutcomeNotFound, "", err
	}
	return OutcomeAlreadyFinal, orderNumber, nil
}

func cancelOrderTx(ctx context.Context, tx pgx.Tx, orderNumber, note, actor string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = 'cancelled', payment_status = 'failed', updated_at = now()
		WHERE order_number = $1 AND status IN ('pending', 'processing')`, orderNumber); err != nil {
		return err
	}
	if err := inventory.RestoreOrder(ctx, tx, orderNumber); err != nil {
		return err
	}
	return appendHistoryTx(ctx, tx, orderNumber, "cancelled", note, actor)
}

func appendHistoryTx(ctx context.Context, tx pgx.Tx, orderNumber, status, note, actor string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(order_number, status, note, actor)
		VALUES ($1, $2, $3, $4)`,
		orderNumber, status, note, actor)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewID mints payment row ids.
func NewID() string { return uuid.NewString() }
