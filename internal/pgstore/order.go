package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/postgres"
)

const orderColumns = `id, number, cart_id, user_id, checkout_ref, status,
	subtotal, discount, shipping_cost, tax, total, created_at, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.Number, &o.CartID, &o.UserID, &o.CheckoutRef, &o.Status,
		&o.Subtotal, &o.Discount, &o.ShippingCost, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	return o, err
}

func (s *Store) CreateOrder(ctx context.Context, o order.Order, items []order.OrderItem, hist order.StatusHistory) error {
	return postgres.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders
			  (id, number, cart_id, user_id, checkout_ref, status,
			   subtotal, discount, shipping_cost, tax, total, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			o.ID, o.Number, o.CartID, o.UserID, o.CheckoutRef, o.Status,
			o.Subtotal, o.Discount, o.ShippingCost, o.Tax, o.Total, o.CreatedAt, o.UpdatedAt); err != nil {
			return err
		}
		for _, it := range items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, variant_id, product_name, quantity, unit_price, total)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				it.ID, it.OrderID, it.VariantID, it.ProductName, it.Quantity, it.UnitPrice, it.Total); err != nil {
				return err
			}
		}
		return insertHistoryTx(ctx, tx, hist)
	})
}

func insertHistoryTx(ctx context.Context, tx pgx.Tx, h order.StatusHistory) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, actor_type, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.ID, h.OrderID, h.FromStatus, h.ToStatus, h.ActorType, h.ActorID, h.Note, h.CreatedAt)
	return err
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return order.ErrNotFound
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, []order.OrderItem, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return order.Order{}, nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, variant_id, product_name, quantity, unit_price, total
		FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return order.Order{}, nil, err
	}
	defer rows.Close()

	var items []order.OrderItem
	for rows.Next() {
		var it order.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return order.Order{}, nil, err
		}
		items = append(items, it)
	}
	return o, items, rows.Err()
}

func (s *Store) OrderByCheckoutRef(ctx context.Context, ref string) (order.Order, error) {
	return scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_ref = $1`, ref))
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to order.Status, hist order.StatusHistory, restock bool) error {
	return postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		// Compare-and-set: the WHERE clause re-checks the expected status at
		// commit time.
		ct, err := tx.Exec(ctx, `
			UPDATE orders SET status = $3, updated_at = $4
			WHERE id = $1 AND status = $2`,
			orderID, from, to, hist.CreatedAt)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return order.ErrNotFound
			}
			return order.ErrConflict
		}

		if restock {
			if err := restockOrderTx(ctx, tx, orderID, hist.CreatedAt); err != nil {
				return err
			}
		}
		return insertHistoryTx(ctx, tx, hist)
	})
}

// restockOrderTx appends a compensating cancel movement for every converted
// reservation of the order, inside the caller's transaction.
func restockOrderTx(ctx context.Context, tx pgx.Tx, orderID string, at time.Time) error {
	rows, err := tx.Query(ctx, `
		SELECT id, variant_id, quantity FROM inventory_reservations
		WHERE order_id = $1 AND status = 'converted'
		ORDER BY variant_id FOR UPDATE`, orderID)
	if err != nil {
		return err
	}
	type rec struct {
		id, variantID string
		qty           int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.id, &x.variantID, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	ref := ledger.RefOrder
	for _, x := range recs {
		if _, err := appendMovementTx(ctx, tx, ledger.Movement{
			ID:        uuid.NewString(),
			VariantID: x.variantID,
			Delta:     x.qty,
			Reason:    ledger.ReasonCancel,
			RefType:   &ref,
			RefID:     &orderID,
			CreatedAt: at,
		}, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddOrderNote(ctx context.Context, n order.Note) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, n.OrderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return order.ErrNotFound
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_notes (id, order_id, body, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.OrderID, n.Body, n.ActorType, n.ActorID, n.CreatedAt)
	return err
}

func (s *Store) ListOrderNotes(ctx context.Context, orderID string) ([]order.Note, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, order.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, body, actor_type, actor_id, created_at
		FROM order_notes WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Note
	for rows.Next() {
		var n order.Note
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Body, &n.ActorType, &n.ActorID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) ListStatusHistory(ctx context.Context, orderID string, page, pageSize int) ([]order.StatusHistory, int, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, order.ErrNotFound
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_status_history WHERE order_id = $1`, orderID).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page, pageSize)
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, note, created_at
		FROM order_status_history WHERE order_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`, orderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []order.StatusHistory
	for rows.Next() {
		var h order.StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus,
			&h.ActorType, &h.ActorID, &h.Note, &h.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}
