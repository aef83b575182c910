package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/postgres"
)

func (s *Store) UpsertVariant(ctx context.Context, variantID string, lowStockThreshold int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO variant_balances (variant_id, low_stock_threshold)
		VALUES ($1, $2)
		ON CONFLICT (variant_id) DO UPDATE
		SET low_stock_threshold = EXCLUDED.low_stock_threshold, updated_at = now()`,
		variantID, lowStockThreshold)
	return err
}

func (s *Store) AppendMovement(ctx context.Context, m ledger.Movement, allowNegative bool) (int, error) {
	var next int
	err := postgres.WithRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		next, err = appendMovementTx(ctx, tx, m, allowNegative)
		return err
	})
	return next, err
}

// appendMovementTx locks the balance row, writes the movement and updates the
// cached counter. Shared with convert and cancel restock paths.
func appendMovementTx(ctx context.Context, tx pgx.Tx, m ledger.Movement, allowNegative bool) (int, error) {
	var stock int
	err := tx.QueryRow(ctx,
		`SELECT stock FROM variant_balances WHERE variant_id = $1 FOR UPDATE`,
		m.VariantID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrVariantNotFound
	}
	if err != nil {
		return 0, err
	}

	next := stock + m.Delta
	if next < 0 && !allowNegative {
		return 0, &ledger.InsufficientStockError{
			VariantID: m.VariantID,
			Requested: -m.Delta,
			Available: stock,
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_movements (id, variant_id, delta, reason, ref_type, ref_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.VariantID, m.Delta, m.Reason, m.RefType, m.RefID, m.ActorID, m.CreatedAt); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE variant_balances SET stock = $2, updated_at = now() WHERE variant_id = $1`,
		m.VariantID, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) VariantBalance(ctx context.Context, variantID string) (ledger.Balance, error) {
	var b ledger.Balance
	err := s.pool.QueryRow(ctx, `
		SELECT variant_id, stock, low_stock_threshold
		FROM variant_balances WHERE variant_id = $1`,
		variantID).Scan(&b.VariantID, &b.Stock, &b.LowStockThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Balance{}, ledger.ErrVariantNotFound
	}
	if err != nil {
		return ledger.Balance{}, err
	}
	b.LowStock = b.Stock <= b.LowStockThreshold
	return b, nil
}

func (s *Store) SumMovements(ctx context.Context, variantID string) (int, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM variant_balances WHERE variant_id = $1)`,
		variantID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ledger.ErrVariantNotFound
	}
	var sum int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM inventory_movements WHERE variant_id = $1`,
		variantID).Scan(&sum)
	return sum, err
}

func (s *Store) VariantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT variant_id FROM variant_balances ORDER BY variant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListMovements(ctx context.Context, f ledger.ListFilter) ([]ledger.Movement, int, error) {
	limit, offset := pageBounds(f.Page, f.PageSize)

	countQ := `SELECT COUNT(*) FROM inventory_movements`
	listQ := `
		SELECT id, variant_id, delta, reason, ref_type, ref_id, actor_id, created_at
		FROM inventory_movements
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`
	countArgs := []any{}
	listArgs := []any{limit, offset}
	if f.VariantID != "" {
		countQ = `SELECT COUNT(*) FROM inventory_movements WHERE variant_id = $1`
		listQ = `
			SELECT id, variant_id, delta, reason, ref_type, ref_id, actor_id, created_at
			FROM inventory_movements WHERE variant_id = $1
			ORDER BY created_at DESC, id
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

	var out []ledger.Movement
	for rows.Next() {
		var m ledger.Movement
		if err := rows.Scan(&m.ID, &m.VariantID, &m.Delta, &m.Reason,
			&m.RefType, &m.RefID, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}
