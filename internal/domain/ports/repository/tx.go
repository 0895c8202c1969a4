package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the underlying handle via `tx`.
//
// Repositories accept `tx Tx` (pgx.Tx for Postgres, nil for the
// non-transactional path) so use-case interfaces stay free of storage types
// while reconciliation can run read-then-write sequences atomically.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
