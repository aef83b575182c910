package pgstore

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables and indexes if they do not exist yet.
// Idempotent; safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS variant_balances (
  variant_id           TEXT PRIMARY KEY,
  stock                INT NOT NULL DEFAULT 0,
  low_stock_threshold  INT NOT NULL DEFAULT 0,
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inventory_movements (
  id          TEXT PRIMARY KEY,
  variant_id  TEXT NOT NULL REFERENCES variant_balances(variant_id),
  delta       INT NOT NULL CHECK (delta <> 0),
  reason      TEXT NOT NULL CHECK (reason IN ('order','cancel','return','admin_adjustment')),
  ref_type    TEXT CHECK (ref_type IN ('order','order_item','return','manual')),
  ref_id      TEXT,
  actor_id    TEXT,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_movements_variant ON inventory_movements(variant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS inventory_reservations (
  id           TEXT PRIMARY KEY,
  variant_id   TEXT NOT NULL REFERENCES variant_balances(variant_id),
  cart_id      TEXT,
  order_id     TEXT,
  quantity     INT NOT NULL CHECK (quantity > 0),
  status       TEXT NOT NULL CHECK (status IN ('active','expired','converted','released')),
  reserved_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at   TIMESTAMPTZ NOT NULL,
  released_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reservations_variant_status ON inventory_reservations(variant_id, status);
CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON inventory_reservations(expires_at) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_reservations_order ON inventory_reservations(order_id) WHERE order_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS coupons (
  id                TEXT PRIMARY KEY,
  code              TEXT NOT NULL UNIQUE,
  type              TEXT NOT NULL CHECK (type IN ('flat','percentage')),
  value             NUMERIC(12,2) NOT NULL CHECK (value >= 0),
  min_order_amount  NUMERIC(12,2),
  max_discount      NUMERIC(12,2),
  valid_from        TIMESTAMPTZ,
  valid_to          TIMESTAMPTZ,
  usage_limit       INT,
  usage_count       INT NOT NULL DEFAULT 0,
  is_active         BOOLEAN NOT NULL DEFAULT TRUE,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
  id             TEXT PRIMARY KEY,
  number         TEXT NOT NULL UNIQUE,
  cart_id        TEXT,
  user_id        TEXT,
  checkout_ref   TEXT UNIQUE,
  status         TEXT NOT NULL CHECK (status IN ('pending','processing','shipped','delivered','cancelled')),
  subtotal       NUMERIC(12,2) NOT NULL,
  discount       NUMERIC(12,2) NOT NULL DEFAULT 0,
  shipping_cost  NUMERIC(12,2) NOT NULL DEFAULT 0,
  tax            NUMERIC(12,2) NOT NULL DEFAULT 0,
  total          NUMERIC(12,2) NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_items (
  id            TEXT PRIMARY KEY,
  order_id      TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  variant_id    TEXT NOT NULL,
  product_name  TEXT NOT NULL,
  quantity      INT NOT NULL CHECK (quantity > 0),
  unit_price    NUMERIC(12,2) NOT NULL,
  total         NUMERIC(12,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS order_coupons (
  id                TEXT PRIMARY KEY,
  order_id          TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  coupon_id         TEXT NOT NULL REFERENCES coupons(id),
  code              TEXT NOT NULL,
  discount_applied  NUMERIC(12,2) NOT NULL,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_order_coupons_order ON order_coupons(order_id);

CREATE TABLE IF NOT EXISTS order_status_history (
  id           TEXT PRIMARY KEY,
  order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  from_status  TEXT,
  to_status    TEXT NOT NULL,
  actor_type   TEXT NOT NULL CHECK (actor_type IN ('system','admin','user')),
  actor_id     TEXT,
  note         TEXT,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_status_history_order ON order_status_history(order_id, created_at);

CREATE TABLE IF NOT EXISTS order_notes (
  id          TEXT PRIMARY KEY,
  order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  body        TEXT NOT NULL,
  actor_type  TEXT NOT NULL CHECK (actor_type IN ('system','admin','user')),
  actor_id    TEXT,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_order_notes_order ON order_notes(order_id, created_at);

CREATE TABLE IF NOT EXISTS payments (
  id              TEXT PRIMARY KEY,
  order_id        TEXT NOT NULL REFERENCES orders(id),
  provider        TEXT NOT NULL,
  status          TEXT NOT NULL CHECK (status IN ('initiated','success','failed','refunded')),
  amount          NUMERIC(12,2) NOT NULL CHECK (amount > 0),
  currency        TEXT NOT NULL,
  transaction_id  TEXT,
  paid_at         TIMESTAMPTZ,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);

CREATE TABLE IF NOT EXISTS refunds (
  id            TEXT PRIMARY KEY,
  payment_id    TEXT NOT NULL REFERENCES payments(id),
  amount        NUMERIC(12,2) NOT NULL CHECK (amount > 0),
  reason        TEXT,
  status        TEXT NOT NULL CHECK (status IN ('initiated','processing','success','failed')),
  processed_at  TIMESTAMPTZ,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_refunds_payment ON refunds(payment_id);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
