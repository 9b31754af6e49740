package postgres

import (
	"github.com/jackc/pgx/v5"
)

// Tx is one open ledger transaction. Its methods are spread over the
// per-aggregate files of this package.
type Tx struct {
	tx pgx.Tx
}
