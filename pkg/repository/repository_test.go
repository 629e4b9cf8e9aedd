package repository

import (
	"context"
	"testing"
	"time"

	"license-controlplane/pkg/db/option"
	"license-controlplane/pkg/db/pagination"
	"license-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;uniqueIndex"`
	Count     int       `gorm:"column:count"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func seed(t *testing.T) (Repository[widget], *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(context.Background(), &widget{
			ID:        name,
			Name:      name,
			Count:     i,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	return repo, db
}

func TestFindOneMissingReturnsNil(t *testing.T) {
	repo, _ := seed(t)

	w, err := repo.FindOne(context.Background(), &widget{Name: "zzz"})
	require.NoError(t, err)
	require.Nil(t, w)

	w, err = repo.FindOne(context.Background(), &widget{Name: "b"})
	require.NoError(t, err)
	require.Equal(t, "b", w.ID)
}

func TestCreateDuplicateTranslated(t *testing.T) {
	repo, _ := seed(t)

	err := repo.Create(context.Background(), &widget{ID: "x", Name: "a"})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestFindWithOptions(t *testing.T) {
	repo, _ := seed(t)
	ctx := context.Background()

	out, err := repo.Find(ctx, &widget{},
		option.ApplyOperator(option.Condition{Field: "count", Operator: option.GT, Value: 0}),
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}),
	)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].ID)

	page, err := repo.Find(ctx, &widget{}, option.ApplyCursor(pagination.Pagination{Limit: 1}, nil))
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "c", page[0].ID)

	next, err := repo.Find(ctx, &widget{}, option.ApplyCursor(pagination.Pagination{Limit: 1}, &pagination.Cursor{
		CreatedAt: page[0].CreatedAt,
		ID:        page[0].ID,
	}))
	require.NoError(t, err)
	require.Equal(t, "b", next[0].ID)
}

func TestUpdateDeleteCount(t *testing.T) {
	repo, db := seed(t)
	ctx := context.Background()

	n, err := repo.Update(ctx, "a", map[string]any{"count": 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = repo.Delete(ctx, &widget{ID: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = repo.Delete(ctx, &widget{})
	require.ErrorIs(t, err, gorm.ErrMissingWhereClause)

	total, err := repo.WithTrx(db).Count(ctx, &widget{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}
