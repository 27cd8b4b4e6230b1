package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/agriconnect/internal/config"
	"github.com/Dan9191/agriconnect/internal/models"
)

func setupRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "users.db") + "?_pragma=busy_timeout(5000)"
	db, err := Open(config.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db, config.DriverSQLite)
	require.NoError(t, repo.Initialize(context.Background()))
	return repo, db
}

func TestInitialize_Idempotent(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Initialize(ctx))
	require.NoError(t, repo.Initialize(ctx))

	version, err := repo.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'accounts'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestInitialize_ImportsLegacyUsers(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "users.db") + "?_pragma=busy_timeout(5000)"
	db, err := Open(config.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Layout written by the first version of the service.
	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	)`)
	require.NoError(t, err)
	legacyHash := "5b11618c2e44027877d0cd0921ed166b9f176f50587fc91e7534dd2946db77d6"
	_, err = db.Exec(`INSERT INTO users (username, password) VALUES ('alice', ?), ('bob', 'h2')`, legacyHash)
	require.NoError(t, err)

	repo := NewRepository(db, config.DriverSQLite)
	ctx := context.Background()
	require.NoError(t, repo.Initialize(ctx))

	got, err := repo.FindAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, legacyHash, got.PasswordHash)

	err = repo.CreateAccount(ctx, &models.Account{Username: "alice", PasswordHash: "new"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	imported, err := repo.importLegacyUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, imported)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestInitialize_NoLegacyTable(t *testing.T) {
	repo, _ := setupRepo(t)

	imported, err := repo.importLegacyUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, imported)
}

func TestCreateAccount_ThenFind(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	acc := &models.Account{Username: "alice", PasswordHash: "hash-1"}
	require.NoError(t, repo.CreateAccount(ctx, acc))
	assert.NotZero(t, acc.ID)
	assert.NotEmpty(t, acc.CreatedAt)

	got, err := repo.FindAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hash-1", got.PasswordHash)
}

func TestCreateAccount_Duplicate_KeepsOriginal(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAccount(ctx, &models.Account{Username: "bob", PasswordHash: "first"}))

	err := repo.CreateAccount(ctx, &models.Account{Username: "bob", PasswordHash: "second"})
	require.ErrorIs(t, err, ErrDuplicateUsername)

	got, err := repo.FindAccountByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "first", got.PasswordHash)
}

func TestCreateAccount_UsernameIsCaseSensitive(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAccount(ctx, &models.Account{Username: "Dana", PasswordHash: "h"}))
	require.NoError(t, repo.CreateAccount(ctx, &models.Account{Username: "dana", PasswordHash: "h"}))
}

func TestFindAccountByUsername_NotFound(t *testing.T) {
	repo, _ := setupRepo(t)

	got, err := repo.FindAccountByUsername(context.Background(), "nouser")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAccount_ConcurrentSameUsername(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateAccount(ctx, &models.Account{Username: "carol", PasswordHash: "h"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateUsername)
	}
	assert.Equal(t, 1, succeeded)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE username = 'carol'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRepository_ClosedDatabase(t *testing.T) {
	repo, db := setupRepo(t)
	require.NoError(t, db.Close())
	ctx := context.Background()

	err := repo.CreateAccount(ctx, &models.Account{Username: "erin", PasswordHash: "h"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateUsername))

	_, err = repo.FindAccountByUsername(ctx, "erin")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.Error(t, repo.Ping(ctx))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := withTx(ctx, repo.db, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO accounts (username, password_hash) VALUES ('frank', 'h')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	repo, db := setupRepo(t)

	assert.Panics(t, func() {
		_ = withTx(context.Background(), repo.db, func(ctx context.Context, tx DBTX) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO accounts (username, password_hash) VALUES ('gina', 'h')`)
			require.NoError(t, err)
			panic("kaput")
		})
	})

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRebind(t *testing.T) {
	pg := NewRepository(nil, config.DriverPostgres)
	assert.Equal(t, "VALUES ($1, $2)", pg.rebind("VALUES (?, ?)"))

	lite := NewRepository(nil, config.DriverSQLite)
	assert.Equal(t, "VALUES (?, ?)", lite.rebind("VALUES (?, ?)"))
}
