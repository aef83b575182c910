package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
	"github.com/cnfstore/commerce-core/internal/postgres"
)

const paymentColumns = `id, order_id, provider, status, amount, currency,
	transaction_id, paid_at, created_at, updated_at`

func scanPayment(row pgx.Row) (payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Status, &p.Amount, &p.Currency,
		&p.TransactionID, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Payment{}, payment.ErrPaymentNotFound
	}
	return p, err
}

func (s *Store) CreatePayment(ctx context.Context, p payment.Payment) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, p.OrderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return order.ErrNotFound
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments
		  (id, order_id, provider, status, amount, currency, transaction_id, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.OrderID, p.Provider, p.Status, p.Amount, p.Currency,
		p.TransactionID, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (s *Store) SetPaymentOutcome(ctx context.Context, id string, status payment.Status, transactionID *string, paidAt *time.Time) error {
	if status != payment.StatusSuccess && status != payment.StatusFailed {
		return &payment.InvalidStatusError{PaymentID: id, From: string(payment.StatusInitiated), To: string(status)}
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE payments SET status = $2, transaction_id = $3, paid_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'initiated'`,
		id, status, transactionID, paidAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT status FROM payments WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		return &payment.InvalidStatusError{PaymentID: id, From: current, To: string(status)}
	}
	return nil
}

// refundedTx sums successful refunds against the payment. Callers must hold
// the payment row lock.
func refundedTx(ctx context.Context, tx pgx.Tx, paymentID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM refunds
		WHERE payment_id = $1 AND status = 'success'`, paymentID).Scan(&sum)
	return sum, err
}

func (s *Store) CreateRefund(ctx context.Context, r payment.Refund) error {
	return postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var amount decimal.Decimal
		err := tx.QueryRow(ctx,
			`SELECT amount FROM payments WHERE id = $1 FOR UPDATE`,
			r.PaymentID).Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.ErrPaymentNotFound
		}
		if err != nil {
			return err
		}

		refunded, err := refundedTx(ctx, tx, r.PaymentID)
		if err != nil {
			return err
		}
		remaining := amount.Sub(refunded)
		if r.Amount.GreaterThan(remaining) {
			return &payment.RefundExceedsPaymentError{
				PaymentID: r.PaymentID,
				Requested: r.Amount,
				Remaining: remaining,
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO refunds (id, payment_id, amount, reason, status, processed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.PaymentID, r.Amount, r.Reason, r.Status, r.ProcessedAt, r.CreatedAt, r.UpdatedAt)
		return err
	})
}

func (s *Store) GetRefund(ctx context.Context, id string) (payment.Refund, error) {
	var r payment.Refund
	err := s.pool.QueryRow(ctx, `
		SELECT id, payment_id, amount, reason, status, processed_at, created_at, updated_at
		FROM refunds WHERE id = $1`, id).Scan(
		&r.ID, &r.PaymentID, &r.Amount, &r.Reason, &r.Status, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Refund{}, payment.ErrRefundNotFound
	}
	return r, err
}

func (s *Store) SetRefundStatus(ctx context.Context, id string, status payment.RefundStatus, at time.Time) error {
	return postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var r payment.Refund
		err := tx.QueryRow(ctx, `
			SELECT id, payment_id, amount, status FROM refunds
			WHERE id = $1 FOR UPDATE`, id).Scan(&r.ID, &r.PaymentID, &r.Amount, &r.Status)
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.ErrRefundNotFound
		}
		if err != nil {
			return err
		}

		valid := (r.Status == payment.RefundInitiated && status == payment.RefundProcessing) ||
			(r.Status == payment.RefundProcessing &&
				(status == payment.RefundSuccess || status == payment.RefundFailed))
		if !valid {
			return &payment.InvalidStatusError{PaymentID: r.PaymentID, From: string(r.Status), To: string(status)}
		}

		if status == payment.RefundSuccess {
			var amount decimal.Decimal
			if err := tx.QueryRow(ctx,
				`SELECT amount FROM payments WHERE id = $1 FOR UPDATE`,
				r.PaymentID).Scan(&amount); err != nil {
				return err
			}
			refunded, err := refundedTx(ctx, tx, r.PaymentID)
			if err != nil {
				return err
			}
			remaining := amount.Sub(refunded)
			if r.Amount.GreaterThan(remaining) {
				return &payment.RefundExceedsPaymentError{
					PaymentID: r.PaymentID,
					Requested: r.Amount,
					Remaining: remaining,
				}
			}
			if _, err := tx.Exec(ctx, `
				UPDATE refunds SET status = $2, processed_at = $3, updated_at = $3
				WHERE id = $1`, id, status, at); err != nil {
				return err
			}
			if r.Amount.Equal(remaining) {
				if _, err := tx.Exec(ctx, `
					UPDATE payments SET status = 'refunded', updated_at = $2
					WHERE id = $1`, r.PaymentID, at); err != nil {
					return err
				}
			}
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE refunds SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
		return err
	})
}

func (s *Store) ListPayments(ctx context.Context, page, pageSize int) ([]payment.Payment, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page, pageSize)
	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Status, &p.Amount, &p.Currency,
			&p.TransactionID, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *Store) ListRefunds(ctx context.Context, page, pageSize int) ([]payment.Refund, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM refunds`).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page, pageSize)
	rows, err := s.pool.Query(ctx, `
		SELECT id, payment_id, amount, reason, status, processed_at, created_at, updated_at
		FROM refunds
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []payment.Refund
	for rows.Next() {
		var r payment.Refund
		if err := rows.Scan(&r.ID, &r.PaymentID, &r.Amount, &r.Reason, &r.Status,
			&r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
