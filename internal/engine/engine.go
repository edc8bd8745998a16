// Package engine implements the warehouse execution collaborator over
// database/sql. Importing it registers the DuckDB and SQLite drivers.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"branchcheck/internal/domain"
)

// Supported drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

// Compile-time check.
var _ domain.Warehouse = (*Warehouse)(nil)

// ErrNotConnected is returned by Execute outside a Connect/Disconnect pair.
var ErrNotConnected = errors.New("warehouse is not connected")

// Options configures a Warehouse.
type Options struct {
	// InitSQL prepares every connection of a handle the Warehouse opens itself,
	// e.g. ATTACH statements. See OpenDB.
	InitSQL []string
	// QueryTimeout bounds each Execute call when positive.
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// Warehouse runs every query of a validation run on one pinned connection.
type Warehouse struct {
	driver string
	dsn    string
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	ownsDB bool
	conn   *sql.Conn
}

// NewWarehouse creates a Warehouse that opens driver/dsn on Connect and
// closes it on Disconnect.
func NewWarehouse(driver, dsn string, opts Options) *Warehouse {
	return &Warehouse{driver: driver, dsn: dsn, opts: opts, logger: loggerOrDefault(opts.Logger)}
}

// NewWarehouseFromDB creates a Warehouse over an existing handle. Disconnect
// releases the pinned connection but leaves db open. opts.InitSQL is not
// applied; open db with OpenDB when its connections need preparing.
func NewWarehouseFromDB(db *sql.DB, opts Options) *Warehouse {
	return &Warehouse{db: db, opts: opts, logger: loggerOrDefault(opts.Logger)}
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Connect pins one connection for the run. Calling Connect while connected is a no-op.
func (w *Warehouse) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return nil
	}
	if w.db == nil {
		db, err := OpenDB(w.driver, w.dsn, w.opts.InitSQL)
		if err != nil {
			return fmt.Errorf("open %s: %w", w.driver, err)
		}
		w.db = db
		w.ownsDB = true
	}

	conn, err := w.db.Conn(ctx)
	if err != nil {
		w.closeOwnedDB()
		return fmt.Errorf("acquire connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		w.closeOwnedDB()
		return fmt.Errorf("ping: %w", err)
	}
	w.conn = conn
	w.logger.Debug("warehouse connected", "driver", w.driver)
	return nil
}

// Execute runs query with optional bound args on the pinned connection.
func (w *Warehouse) Execute(ctx context.Context, query string, args ...interface{}) (*domain.QueryResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil, ErrNotConnected
	}
	if w.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.QueryTimeout)
		defer cancel()
	}

	rows, err := w.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return ScanRows(rows)
}

// Disconnect releases the pinned connection. It is safe to call more than once.
func (w *Warehouse) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		w.conn = nil
	}
	if err := w.closeOwnedDB(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", w.driver, err))
	}
	return errors.Join(errs...)
}

func (w *Warehouse) closeOwnedDB() error {
	if !w.ownsDB || w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	w.ownsDB = false
	return err
}

// ScanRows reads all rows into a QueryResult. Byte slices become strings.
func ScanRows(rows *sql.Rows) (*domain.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := [][]interface{}{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		resultRows = append(resultRows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.QueryResult{
		Columns:  cols,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
