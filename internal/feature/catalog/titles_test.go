package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"review-api/internal/domain"
	"review-api/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T) (*gorm.DB, *Titles) {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&[]domain.Category{{Name: "Films", Slug: "films"}, {Name: "Books", Slug: "books"}}).Error)
	require.NoError(t, db.Create(&[]domain.Genre{{Name: "Drama", Slug: "drama"}, {Name: "Crime", Slug: "crime"}}).Error)
	s := NewTitles(db)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return db, s
}

func fields(t *testing.T, err error) map[string][]string {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "want validation error, got %v", err)
	return ve.Fields
}

func TestCreateValidation(t *testing.T) {
	_, s := seed(t)
	ctx := context.Background()

	_, err := s.Create(ctx, TitleInput{})
	f := fields(t, err)
	assert.Contains(t, f, "name")
	assert.Contains(t, f, "year")

	_, err = s.Create(ctx, TitleInput{Name: ptr("Future"), Year: ptr(2025)})
	assert.Contains(t, fields(t, err), "year")

	out, err := s.Create(ctx, TitleInput{Name: ptr("Now"), Year: ptr(2024)})
	require.NoError(t, err)
	assert.Nil(t, out.Category)
	assert.Empty(t, out.Genre)

	_, err = s.Create(ctx, TitleInput{Name: ptr("X"), Year: ptr(2000), Category: ptr("nope"), Genre: &[]string{"drama", "ghost"}})
	f = fields(t, err)
	assert.Equal(t, []string{"object with slug=nope does not exist"}, f["category"])
	assert.Equal(t, []string{"object with slug=ghost does not exist"}, f["genre"])
}

func TestListFiltersAndRatings(t *testing.T) {
	db, s := seed(t)
	ctx := context.Background()

	heat, err := s.Create(ctx, TitleInput{Name: ptr("Heat"), Year: ptr(1995), Category: ptr("films"), Genre: &[]string{"crime", "drama", "crime"}})
	require.NoError(t, err)
	assert.Len(t, heat.Genre, 2)
	_, err = s.Create(ctx, TitleInput{Name: ptr("Anna Karenina"), Year: ptr(1878), Category: ptr("books"), Genre: &[]string{"drama"}})
	require.NoError(t, err)

	list := func(f TitleFilter) []TitleOut {
		t.Helper()
		out, _, err := s.List(ctx, f)
		require.NoError(t, err)
		return out
	}
	all := list(TitleFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, "Anna Karenina", all[0].Name)
	assert.Len(t, list(TitleFilter{Genre: "crime"}), 1)
	assert.Len(t, list(TitleFilter{Category: "books"}), 1)
	assert.Len(t, list(TitleFilter{Name: "ea"}), 1)
	assert.Len(t, list(TitleFilter{Year: ptr(1995)}), 1)
	assert.Len(t, list(TitleFilter{Category: "films", Genre: "drama"}), 1)
	assert.Empty(t, list(TitleFilter{Category: "ghost"}))

	u1 := domain.User{Username: "a", Email: "a@x.com", Role: domain.RoleUser}
	u2 := domain.User{Username: "b", Email: "b@x.com", Role: domain.RoleUser}
	require.NoError(t, db.Create(&u1).Error)
	require.NoError(t, db.Create(&u2).Error)
	require.NoError(t, db.Create(&domain.Review{TitleID: heat.ID, AuthorID: u1.ID, Text: "x", Score: 8}).Error)
	require.NoError(t, db.Create(&domain.Review{TitleID: heat.ID, AuthorID: u2.ID, Text: "y", Score: 5}).Error)

	got, err := s.Get(ctx, heat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.InDelta(t, 6.5, *got.Rating, 1e-9)

	ratings, err := Ratings(db, []uint{heat.ID, 999})
	require.NoError(t, err)
	assert.Len(t, ratings, 1)
}

func TestUpdate(t *testing.T) {
	_, s := seed(t)
	ctx := context.Background()
	ti, err := s.Create(ctx, TitleInput{Name: ptr("Heat"), Year: ptr(1995), Category: ptr("films"), Genre: &[]string{"crime"}})
	require.NoError(t, err)

	out, err := s.Update(ctx, ti.ID, TitleInput{Description: ptr("LA"), Genre: &[]string{"drama", "crime"}})
	require.NoError(t, err)
	assert.Equal(t, "Heat", out.Name)
	assert.Equal(t, "LA", out.Description)
	assert.Len(t, out.Genre, 2)
	require.NotNil(t, out.Category)

	out, err = s.Update(ctx, ti.ID, TitleInput{Category: ptr(""), Genre: &[]string{}})
	require.NoError(t, err)
	assert.Nil(t, out.Category)
	assert.Empty(t, out.Genre)

	_, err = s.Update(ctx, ti.ID, TitleInput{Name: ptr("  ")})
	assert.Contains(t, fields(t, err), "name")

	_, err = s.Update(ctx, 999, TitleInput{Name: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	db, s := seed(t)
	ctx := context.Background()
	ti, err := s.Create(ctx, TitleInput{Name: ptr("Heat"), Year: ptr(1995), Genre: &[]string{"crime"}})
	require.NoError(t, err)
	u := domain.User{Username: "a", Email: "a@x.com", Role: domain.RoleUser}
	require.NoError(t, db.Create(&u).Error)
	r := domain.Review{TitleID: ti.ID, AuthorID: u.ID, Text: "x", Score: 8}
	require.NoError(t, db.Create(&r).Error)
	require.NoError(t, db.Create(&domain.Comment{ReviewID: r.ID, AuthorID: u.ID, Text: "c"}).Error)

	require.NoError(t, s.Delete(ctx, ti.ID))
	assert.ErrorIs(t, s.Exists(ctx, ti.ID), domain.ErrNotFound)
	for _, m := range []any{&domain.Review{}, &domain.Comment{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n)
	}
	var links int64
	require.NoError(t, db.Table("title_genres").Count(&links).Error)
	assert.Zero(t, links)
	var genres int64
	require.NoError(t, db.Model(&domain.Genre{}).Count(&genres).Error)
	assert.EqualValues(t, 2, genres, "genres survive title deletion")

	assert.ErrorIs(t, s.Delete(ctx, ti.ID), domain.ErrNotFound)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "title:42", CacheKey(42))
}
