package postgresql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/cep-crawler/shared/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Client{
		db:     sqlx.NewDb(db, "postgres"),
		config: &Config{},
		logger: logger.NewNop().Logger,
	}, mock
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "cep_crawler"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cep_crawler sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestMigrate_AppliesPendingInOrder(t *testing.T) {
	client, mock := newMockClient(t)

	migrations := fstest.MapFS{
		"0002_add_index.sql":    {Data: []byte("CREATE INDEX b ON t (id);")},
		"0001_create_table.sql": {Data: []byte("CREATE TABLE t (id INT);")},
		"README.md":             {Data: []byte("ignored")},
	}

	mock.ExpectExec(regexp.QuoteMeta(createMigrationsTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectAppliedMigrations)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_create_table.sql"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX b ON t (id);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertMigration)).
		WithArgs("0002_add_index.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, client.Migrate(context.Background(), migrations))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	client, mock := newMockClient(t)

	migrations := fstest.MapFS{
		"0001_create_table.sql": {Data: []byte("CREATE TABLE t (id INT);")},
	}

	mock.ExpectExec(regexp.QuoteMeta(createMigrationsTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectAppliedMigrations)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE t (id INT);")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := client.Migrate(context.Background(), migrations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 0001_create_table.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client, mock := newMockClient(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		assert.NoError(t, client.HealthCheck(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreachable", func(t *testing.T) {
		client, mock := newMockClient(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnError(errors.New("connection refused"))

		err := client.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database query health check failed")
	})
}
