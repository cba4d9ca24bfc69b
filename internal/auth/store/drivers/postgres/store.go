// Package postgres is the Postgres store driver, built on the pgx stdlib
// adapter so it shares the database/sql repositories with sqlite.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/sqlcore"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

var Dialect = sqlcore.Dialect{
	Name:               "postgres",
	DollarPlaceholders: true,
	IsUniqueViolation:  isUniqueViolation,
}

type Store struct {
	*sqlcore.Store
}

// NewStore connects with a postgres URL and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{Store: sqlcore.NewStore(db, Dialect)}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
