package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/mattn/go-sqlite3"
)

// OpenDB opens a pool whose connections see the effects of initSQL.
//
// DuckDB catalogs are shared by every connection of an instance, so the
// statements run once, on the first connection that succeeds. SQLite keeps
// ATTACH and PRAGMA state per connection, so they run on every new one.
// Without initSQL this is sql.Open.
func OpenDB(driverName, dsn string, initSQL []string) (*sql.DB, error) {
	if len(initSQL) == 0 {
		return sql.Open(driverName, dsn)
	}
	switch driverName {
	case DriverDuckDB:
		once := &onceInit{stmts: initSQL}
		connector, err := duckdb.NewConnector(dsn, once.run)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	case DriverSQLite:
		return sql.Open(sqliteDriverWithInit(initSQL), dsn)
	default:
		return nil, fmt.Errorf("init statements are not supported for driver %q", driverName)
	}
}

// onceInit runs its statements until they succeed once.
type onceInit struct {
	stmts []string
	mu    sync.Mutex
	done  bool
}

func (o *onceInit) run(execer driver.ExecerContext) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	for _, stmt := range o.stmts {
		if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
			return fmt.Errorf("init statement: %w", err)
		}
	}
	o.done = true
	return nil
}

var (
	sqliteInitDrivers sync.Map // joined statements -> registered driver name
	sqliteInitSeq     atomic.Int64
	sqliteRegisterMu  sync.Mutex
)

// sqliteDriverWithInit returns the name of a sqlite3 driver whose connect
// hook runs stmts. Drivers are registered once per distinct statement list.
func sqliteDriverWithInit(stmts []string) string {
	key := strings.Join(stmts, "\x00")
	if name, ok := sqliteInitDrivers.Load(key); ok {
		return name.(string)
	}

	sqliteRegisterMu.Lock()
	defer sqliteRegisterMu.Unlock()
	if name, ok := sqliteInitDrivers.Load(key); ok {
		return name.(string)
	}

	stmts = append([]string(nil), stmts...)
	name := fmt.Sprintf("%s_init_%d", DriverSQLite, sqliteInitSeq.Add(1))
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, stmt := range stmts {
				if _, err := conn.Exec(stmt, nil); err != nil {
					return fmt.Errorf("init statement: %w", err)
				}
			}
			return nil
		},
	})
	sqliteInitDrivers.Store(key, name)
	return name
}
