package postgres

import (
	"context"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/jmoiron/sqlx"
)

// store implements every replenishment repository on a pool or a transaction
type store struct {
	q sqlx.ExtContext
	// inTx enables row locking reads
	inTx bool
}

// Transactor opens repository units of work on the pool
type Transactor struct {
	db *DB
}

func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db}
}

var _ repository.Transactor = (*Transactor)(nil)

// Repositories returns repositories running on the pool outside any transaction
func (t *Transactor) Repositories() repository.Repositories {
	return bind(&store{q: t.db.DB})
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return t.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(ctx, bind(&store{q: tx, inTx: true}))
	})
}

func bind(s *store) repository.Repositories {
	return repository.Repositories{
		Demand:     s,
		Stock:      s,
		Catalog:    s,
		Transfers:  s,
		Routes:     s,
		Warehouses: s,
		Rules:      s,
		Regions:    s,
		Runs:       s,
	}
}
