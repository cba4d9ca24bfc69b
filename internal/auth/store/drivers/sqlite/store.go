package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/sqlcore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect is the sqlcore dialect for modernc sqlite.
var Dialect = sqlcore.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
}

type Store struct {
	*sqlcore.Store
	dsn string
}

// NewStore opens a sqlite database. Use ":memory:" for an in-process
// database that lives as long as the Store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite has a single writer; one connection keeps every statement,
	// including the atomic updates, serialised and keeps :memory: alive.
	db.SetMaxOpenConns(1)

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		Store: sqlcore.NewStore(db, Dialect),
		dsn:   dsn,
	}, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
