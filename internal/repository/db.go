package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cafe-order-service/internal/entity"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	// Pure-Go SQLite driver for local runs and tests, no CGO needed.
	_ "modernc.org/sqlite"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Dialect selects the few SQL fragments that differ between backends.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// lockClause is appended to balance reads inside a transaction. SQLite locks
// the whole database for the writer so it needs none.
func (d Dialect) lockClause() string {
	if d == DialectMySQL {
		return " FOR UPDATE"
	}
	return ""
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the connection pool and hands out repositories bound either to
// the pool or to one transaction.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Orders() *OrderRepository {
	return NewOrderRepository(s.db, s.dialect)
}

func (s *Store) Recipes() *RecipeRepository {
	return NewRecipeRepository(s.db)
}

func (s *Store) Inventory() *InventoryRepository {
	return NewInventoryRepository(s.db, s.dialect)
}

// Tx groups the repositories that take part in one transaction.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *Tx) Orders() *OrderRepository {
	return NewOrderRepository(t.tx, t.dialect)
}

func (t *Tx) Inventory() *InventoryRepository {
	return NewInventoryRepository(t.tx, t.dialect)
}

// InTx runs fn inside a transaction. Any error from fn rolls everything back
// and is returned unchanged. A panic in fn also rolls back before it
// propagates, so the connection goes back to the pool.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Persistence("begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Error().Err(err).Msg("Error rolling back transaction")
		}
	}()

	if err := fn(&Tx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return entity.Persistence("commit transaction", err)
	}
	committed = true
	return nil
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// one writer; transactions queue on the pool instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return db, nil
}

func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// dbTime scans timestamps from either driver: MySQL returns time.Time with
// parseTime=true and []byte without it, SQLite may hand back TEXT.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp value %T", value)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	tm := t.Time
	return &tm
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
