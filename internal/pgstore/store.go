// Package pgstore is the Postgres implementation of every store interface,
// built on pgx. Cross-entity operations (convert, cancel restock, refund
// bounds) run in single transactions with row locks, so the invariants the
// in-memory store enforces under one mutex hold here under concurrent
// connections.
package pgstore

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cnfstore/commerce-core/internal/coupon"
	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/payment"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ ledger.Store      = (*Store)(nil)
	_ reservation.Store = (*Store)(nil)
	_ coupon.Store      = (*Store)(nil)
	_ order.Store       = (*Store)(nil)
	_ payment.Store     = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}
