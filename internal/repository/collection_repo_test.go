package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aihub/vectorstore-go/internal/models"
)

func newMockRepo(t *testing.T) (CollectionRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return NewCollectionRepository(db), mock
}

func collectionRows(cols ...models.Collection) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "description", "vector_dim", "created_at", "updated_at"})
	for _, c := range cols {
		rows.AddRow(c.ID, c.Name, c.Description, c.VectorDim, c.CreatedAt, c.UpdatedAt)
	}
	return rows
}

func TestCollectionRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	want := models.Collection{
		ID:        "11111111-1111-1111-1111-111111111111",
		Name:      "docs",
		VectorDim: 1536,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	mock.ExpectQuery(`SELECT \* FROM "collections" WHERE id = \$1`).
		WithArgs(want.ID).
		WillReturnRows(collectionRows(want))

	got, err := repo.GetByID(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.VectorDim, got.VectorDim)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "collections" WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(collectionRows())

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCollectionRepository_GetByName(t *testing.T) {
	repo, mock := newMockRepo(t)

	want := models.Collection{ID: "id-1", Name: "docs", VectorDim: 4}
	mock.ExpectQuery(`SELECT \* FROM "collections" WHERE name = \$1`).
		WithArgs("docs").
		WillReturnRows(collectionRows(want))

	got, err := repo.GetByName(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
}

func TestCollectionRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "collections"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), &models.Collection{
		ID:        "id-1",
		Name:      "docs",
		VectorDim: 4,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "collections" ORDER BY created_at ASC,id ASC`).
		WillReturnRows(collectionRows(
			models.Collection{ID: "a", Name: "first", VectorDim: 4},
			models.Collection{ID: "b", Name: "second", VectorDim: 8},
		))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Name)
}

func TestCollectionRepository_Update_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "collections"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Update(context.Background(), "missing", map[string]interface{}{"name": "x"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCollectionRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "collections"`).
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "id-1"))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "collections"`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}
