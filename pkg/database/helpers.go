package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type TxFunc func(tx *sqlx.Tx) error

func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// BITables are the tables the close pipeline writes. Operational tables
// belong to the host application and are not checked.
var BITables = []string{"period_summaries", "kpi_values", "bi_snapshots", "analytics_cache", "alerts", "period_locks"}

var ErrSchemaIncomplete = errors.New("database schema incomplete")

// Status describes the server and connection pool behind DB.
type Status struct {
	Driver          string   `json:"driver"`
	Version         string   `json:"version"`
	MissingTables   []string `json:"missing_tables,omitempty"`
	OpenConnections int      `json:"open_connections"`
	InUse           int      `json:"in_use"`
	Idle            int      `json:"idle"`
	WaitCount       int64    `json:"wait_count"`
}

// Status reports the server version, pool usage and which of tables are
// missing. A missing table yields ErrSchemaIncomplete with the status.
func (db *DB) Status(ctx context.Context, tables ...string) (*Status, error) {
	version, err := db.GetVersion(ctx)
	if err != nil {
		return nil, err
	}

	pool := db.Stats()
	st := &Status{
		Driver:          db.driver,
		Version:         version,
		OpenConnections: pool.OpenConnections,
		InUse:           pool.InUse,
		Idle:            pool.Idle,
		WaitCount:       pool.WaitCount,
	}
	for _, table := range tables {
		ok, err := db.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			st.MissingTables = append(st.MissingTables, table)
		}
	}
	if len(st.MissingTables) > 0 {
		return st, fmt.Errorf("%w: missing %s", ErrSchemaIncomplete, strings.Join(st.MissingTables, ", "))
	}
	return st, nil
}

// Describe is the health detail for the BI schema.
func (db *DB) Describe(ctx context.Context) (interface{}, error) {
	st, err := db.Status(ctx, BITables...)
	if st == nil {
		return nil, err
	}
	return st, err
}

func (db *DB) TableExists(ctx context.Context, tableName string) (bool, error) {
	var query string
	if db.driver == DriverSQLite {
		query = `SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?`
	} else {
		query = `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = ?
			)`
	}

	var exists bool
	if err := db.QueryRowxContext(ctx, db.Rebind(query), tableName).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check if table exists: %w", err)
	}
	return exists, nil
}

func (db *DB) GetVersion(ctx context.Context) (string, error) {
	query := "SELECT version()"
	if db.driver == DriverSQLite {
		query = "SELECT sqlite_version()"
	}

	var version string
	if err := db.QueryRowxContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get database version: %w", err)
	}
	return version, nil
}

func nowUnix() int64 {
	return time.Now().UTC().Unix()
}
