package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/postgres"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

func (s *Store) CreateReservation(ctx context.Context, r reservation.Reservation) error {
	return postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the balance row so two carts cannot both pass the
		// availability check for the last unit.
		var stock int
		err := tx.QueryRow(ctx,
			`SELECT stock FROM variant_balances WHERE variant_id = $1 FOR UPDATE`,
			r.VariantID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrVariantNotFound
		}
		if err != nil {
			return err
		}

		var held int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(quantity), 0) FROM inventory_reservations
			WHERE variant_id = $1 AND status = 'active'`,
			r.VariantID).Scan(&held); err != nil {
			return err
		}

		available := stock - held
		if available < r.Quantity {
			return &reservation.OutOfStockError{
				VariantID: r.VariantID,
				Requested: r.Quantity,
				Available: available,
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_reservations
			  (id, variant_id, cart_id, order_id, quantity, status, reserved_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.VariantID, r.CartID, r.OrderID, r.Quantity, r.Status, r.ReservedAt, r.ExpiresAt)
		return err
	})
}

func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	return scanReservation(s.pool.QueryRow(ctx, `
		SELECT id, variant_id, cart_id, order_id, quantity, status, reserved_at, expires_at, released_at
		FROM inventory_reservations WHERE id = $1`, id), id)
}

func scanReservation(row pgx.Row, id string) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := row.Scan(&r.ID, &r.VariantID, &r.CartID, &r.OrderID, &r.Quantity,
		&r.Status, &r.ReservedAt, &r.ExpiresAt, &r.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.Reservation{}, &reservation.NotFoundError{ReservationID: id}
	}
	return r, err
}

func (s *Store) ConvertReservation(ctx context.Context, id, orderID string) error {
	return postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		r, err := scanReservation(tx.QueryRow(ctx, `
			SELECT id, variant_id, cart_id, order_id, quantity, status, reserved_at, expires_at, released_at
			FROM inventory_reservations WHERE id = $1 FOR UPDATE`, id), id)
		if err != nil {
			return err
		}
		switch r.Status {
		case reservation.StatusActive:
		case reservation.StatusExpired:
			return &reservation.ExpiredError{ReservationID: id}
		default:
			return fmt.Errorf("reservation %s is %s", id, r.Status)
		}

		ref := ledger.RefOrderItem
		if _, err := appendMovementTx(ctx, tx, ledger.Movement{
			ID:        uuid.NewString(),
			VariantID: r.VariantID,
			Delta:     -r.Quantity,
			Reason:    ledger.ReasonOrder,
			RefType:   &ref,
			RefID:     &orderID,
			CreatedAt: time.Now().UTC(),
		}, false); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE inventory_reservations SET status = 'converted', order_id = $2
			WHERE id = $1 AND status = 'active'`, id, orderID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return &reservation.ExpiredError{ReservationID: id}
		}
		return nil
	})
}

func (s *Store) UnconvertReservation(ctx context.Context, id string) error {
	return postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		r, err := scanReservation(tx.QueryRow(ctx, `
			SELECT id, variant_id, cart_id, order_id, quantity, status, reserved_at, expires_at, released_at
			FROM inventory_reservations WHERE id = $1 FOR UPDATE`, id), id)
		if err != nil {
			return err
		}
		if r.Status != reservation.StatusConverted {
			return fmt.Errorf("reservation %s is %s, not converted", id, r.Status)
		}

		ref := ledger.RefOrderItem
		if _, err := appendMovementTx(ctx, tx, ledger.Movement{
			ID:        uuid.NewString(),
			VariantID: r.VariantID,
			Delta:     r.Quantity,
			Reason:    ledger.ReasonCancel,
			RefType:   &ref,
			RefID:     r.OrderID,
			CreatedAt: time.Now().UTC(),
		}, false); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE inventory_reservations SET status = 'active', order_id = NULL
			WHERE id = $1`, id)
		return err
	})
}

func (s *Store) ReleaseReservation(ctx context.Context, id string, at time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE inventory_reservations SET status = 'released', released_at = $2
		WHERE id = $1 AND status IN ('active', 'expired')`, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM inventory_reservations WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return &reservation.NotFoundError{ReservationID: id}
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("reservation %s is %s, cannot release", id, status)
	}
	return nil
}

func (s *Store) ExpireDueReservations(ctx context.Context, now time.Time) (int, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE inventory_reservations SET status = 'expired'
		WHERE status = 'active' AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (s *Store) AvailableStock(ctx context.Context, variantID string) (int, error) {
	var available int
	err := s.pool.QueryRow(ctx, `
		SELECT b.stock - COALESCE((
			SELECT SUM(r.quantity) FROM inventory_reservations r
			WHERE r.variant_id = b.variant_id AND r.status = 'active'), 0)
		FROM variant_balances b WHERE b.variant_id = $1`,
		variantID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrVariantNotFound
	}
	return available, err
}

func (s *Store) ListReservations(ctx context.Context, f reservation.ListFilter) ([]reservation.Reservation, int, error) {
	limit, offset := pageBounds(f.Page, f.PageSize)

	countQ := `SELECT COUNT(*) FROM inventory_reservations`
	listQ := `
		SELECT id, variant_id, cart_id, order_id, quantity, status, reserved_at, expires_at, released_at
		FROM inventory_reservations
		ORDER BY reserved_at DESC, id
		LIMIT $1 OFFSET $2`
	countArgs := []any{}
	listArgs := []any{limit, offset}
	if f.VariantID != "" {
		countQ = `SELECT COUNT(*) FROM inventory_reservations WHERE variant_id = $1`
		listQ = `
			SELECT id, variant_id, cart_id, order_id, quantity, status, reserved_at, expires_at, released_at
			FROM inventory_reservations WHERE variant_id = $1
			ORDER BY reserved_at DESC, id
			LIMIT $2 OFFSET $3`
		countArgs = []any{f.VariantID}
		listArgs = []any{f.VariantID, limit, offset}
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, listQ, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		var r reservation.Reservation
		if err := rows.Scan(&r.ID, &r.VariantID, &r.CartID, &r.OrderID, &r.Quantity,
			&r.Status, &r.ReservedAt, &r.ExpiresAt, &r.ReleasedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
