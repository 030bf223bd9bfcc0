package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle passed through use cases into
// repositories. Repositories must accept a nil Tx (non-transactional path);
// the concrete type is infra-defined (pgx.Tx for Postgres).
type Tx interface{}

// NoTX marks the explicit non-transactional call path.
var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the transaction handle to repositories via Tx. It keeps use-case
// interfaces free of storage types while still letting repositories run
// guarded updates and SELECT ... FOR UPDATE inside the transaction.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
