package sqlcore

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/vouch/internal/auth/store"
)

// Store implements everything in store.Store except ApplyMigrations, which
// each driver supplies with its own embedded migrations.
type Store struct {
	db      *sql.DB
	q       *Queries
	dialect Dialect
}

func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, q: NewQueries(db, d), dialect: d}
}

// DB exposes the pool for drivers (migrations, pragmas).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, q: NewQueries(tx, s.dialect)}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Challenges() store.Challenges   { return &challengesRepo{q: s.q} }
func (s *Store) Sessions() store.Sessions       { return &sessionsRepo{q: s.q} }
func (s *Store) Factors() store.Factors         { return &factorsRepo{q: s.q} }
func (s *Store) BackupCodes() store.BackupCodes { return &backupCodesRepo{q: s.q} }
func (s *Store) StepUps() store.StepUps         { return &stepUpsRepo{q: s.q} }
func (s *Store) Users() store.Users             { return &usersRepo{q: s.q} }

type txStore struct {
	tx *sql.Tx
	q  *Queries
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error                 { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }

// ApplyMigrations is a no-op; migrations run before any transaction.
func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

// WithTx joins the enclosing transaction. The outer WithTx commits or rolls
// back.
func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(t)
}

func (t *txStore) Challenges() store.Challenges   { return &challengesRepo{q: t.q} }
func (t *txStore) Sessions() store.Sessions       { return &sessionsRepo{q: t.q} }
func (t *txStore) Factors() store.Factors         { return &factorsRepo{q: t.q} }
func (t *txStore) BackupCodes() store.BackupCodes { return &backupCodesRepo{q: t.q} }
func (t *txStore) StepUps() store.StepUps         { return &stepUpsRepo{q: t.q} }
func (t *txStore) Users() store.Users             { return &usersRepo{q: t.q} }
