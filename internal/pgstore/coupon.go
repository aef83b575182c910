package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cnfstore/commerce-core/internal/coupon"
)

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO coupons
		  (id, code, type, value, min_order_amount, max_discount,
		   valid_from, valid_to, usage_limit, usage_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Code, c.Type, c.Value, c.MinOrderAmount, c.MaxDiscount,
		c.ValidFrom, c.ValidTo, c.UsageLimit, c.UsageCount, c.IsActive, c.CreatedAt, c.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.New("coupon code " + c.Code + " already exists")
	}
	return err
}

const couponColumns = `id, code, type, value, min_order_amount, max_discount,
	valid_from, valid_to, usage_limit, usage_count, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&c.ValidFrom, &c.ValidTo, &c.UsageLimit, &c.UsageCount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, err
}

func (s *Store) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	return scanCoupon(s.pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
}

func (s *Store) CouponByID(ctx context.Context, id string) (coupon.Coupon, error) {
	return scanCoupon(s.pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
}

// ApplyCoupon is a single compare-and-increment: the WHERE clause re-checks
// the cap at commit time, so concurrent redemptions of the last slot cannot
// both succeed.
func (s *Store) ApplyCoupon(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var code string
		err := s.pool.QueryRow(ctx, `SELECT code FROM coupons WHERE id = $1`, id).Scan(&code)
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrNotFound
		}
		if err != nil {
			return err
		}
		return &coupon.UsageExceededError{Code: code}
	}
	return nil
}

func (s *Store) ReleaseCouponUsage(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE coupons SET usage_count = GREATEST(usage_count - 1, 0), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return coupon.ErrNotFound
	}
	return nil
}

func (s *Store) RecordOrderCoupon(ctx context.Context, oc coupon.OrderCoupon) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_coupons (id, order_id, coupon_id, code, discount_applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		oc.ID, oc.OrderID, oc.CouponID, oc.Code, oc.DiscountApplied, oc.CreatedAt)
	return err
}

func (s *Store) SetCouponActive(ctx context.Context, id string, active bool) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE coupons SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return coupon.ErrNotFound
	}
	return nil
}

func (s *Store) ListCoupons(ctx context.Context, page, pageSize int) ([]coupon.Coupon, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM coupons`).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page, pageSize)
	rows, err := s.pool.Query(ctx, `
		SELECT `+couponColumns+` FROM coupons
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []coupon.Coupon
	for rows.Next() {
		var c coupon.Coupon
		if err := rows.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
			&c.ValidFrom, &c.ValidTo, &c.UsageLimit, &c.UsageCount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
