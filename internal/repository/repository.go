package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Dan9191/agriconnect/internal/config"
	"github.com/Dan9191/agriconnect/internal/models"
)

//go:embed migrations
var migrationsFS embed.FS

// goose keeps its dialect and filesystem in package globals
var migrateMu sync.Mutex

var (
	// ErrDuplicateUsername is returned when an account with the same username exists
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrNotFound is returned when no account matches the lookup
	ErrNotFound = errors.New("account not found")
)

// Repository provides database operations on accounts
type Repository struct {
	db     *sql.DB
	driver string
}

// Open opens a connection pool for the given driver
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == config.DriverSQLite {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY
		// and keeps :memory: databases alive for the pool's lifetime.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB, driver string) *Repository {
	return &Repository{db: db, driver: driver}
}

// Initialize applies pending schema migrations. It is a no-op when the
// schema is already current.
func (r *Repository) Initialize(ctx context.Context) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if r.driver == config.DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(fsys)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, r.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if r.driver == config.DriverSQLite {
		if _, err := r.importLegacyUsers(ctx); err != nil {
			return err
		}
	}
	return nil
}

// importLegacyUsers copies rows from the users(username, password) table
// written by the first version of the service into accounts. Usernames that
// already have an account are skipped, so repeated runs add nothing.
func (r *Repository) importLegacyUsers(ctx context.Context) (int64, error) {
	var imported int64
	err := withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		var columns int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM pragma_table_info('users')
			WHERE name IN ('username', 'password')`).Scan(&columns)
		if err != nil {
			return err
		}
		if columns != 2 {
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO accounts (username, password_hash)
			SELECT username, password FROM users
			WHERE username IS NOT NULL AND password IS NOT NULL`)
		if err != nil {
			return err
		}
		imported, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import legacy users: %w", err)
	}
	return imported, nil
}

// SchemaVersion returns the latest applied migration version
func (r *Repository) SchemaVersion(ctx context.Context) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	version, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateAccount inserts a new account and fills in its ID and CreatedAt
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := r.rebind(`
		INSERT INTO accounts (username, password_hash)
		VALUES (?, ?)
		RETURNING id, created_at`)

	err := withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		return tx.QueryRowContext(ctx, query, account.Username, account.PasswordHash).
			Scan(&account.ID, &account.CreatedAt)
	})
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindAccountByUsername retrieves an account by username
func (r *Repository) FindAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := &models.Account{}
	query := r.rebind(`
		SELECT id, username, password_hash, created_at
		FROM accounts
		WHERE username = ?`)

	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// rebind converts ? placeholders to $N for postgres
func (r *Repository) rebind(query string) string {
	if r.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
