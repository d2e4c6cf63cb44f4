package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLExecutor_Exec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "User" \("name"\) VALUES \(\$1\)`).
		WithArgs("ada").
		WillReturnResult(sqlmock.NewResult(1, 1))

	exec := NewExecutor(db)
	res, err := exec.Exec(context.Background(), `INSERT INTO "User" ("name") VALUES ($1)`, []interface{}{"ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, int64(1), res.LastInsertID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutor_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada")
	mock.ExpectQuery(`SELECT "id", "name" FROM "User" WHERE "id" = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	exec := NewExecutor(db)
	got, err := exec.Query(context.Background(), `SELECT "id", "name" FROM "User" WHERE "id" = $1`, []interface{}{int64(1)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTxExecutor_CommitsThroughInterface(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "User"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := NewTxExecutor(context.Background(), db, nil)
	require.NoError(t, err)

	res, err := tx.Exec(context.Background(), `DELETE FROM "User"`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)
	require.NoError(t, tx.Commit(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
