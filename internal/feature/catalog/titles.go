package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"review-api/internal/domain"
	"review-api/internal/transport/http/ez"
)

// TitleOut is the read shape: related records embedded, rating computed.
type TitleOut struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	Year        int              `json:"year"`
	Rating      *float64         `json:"rating"`
	Description string           `json:"description"`
	Genre       []domain.Genre   `json:"genre"`
	Category    *domain.Category `json:"category"`
}

// TitleInput is the write shape. Related records are referenced by slug;
// absent fields are left unchanged on PATCH. An empty category clears it.
type TitleInput struct {
	Name        *string   `json:"name"`
	Year        *int      `json:"year"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Genre       *[]string `json:"genre"`
}

type TitleFilter struct {
	ez.PageQuery
	Category string `form:"category"`
	Genre    string `form:"genre"`
	Name     string `form:"name"`
	Year     *int   `form:"year"`
}

// CacheKey is the cache entry holding a title's read shape.
func CacheKey(id uint) string { return fmt.Sprintf("title:%d", id) }

const maxNameLen = 256

// Titles is the gorm-backed title store.
type Titles struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTitles(db *gorm.DB) *Titles { return &Titles{db: db, now: time.Now} }

func (s *Titles) scope(db *gorm.DB, f TitleFilter) *gorm.DB {
	q := db.Model(&domain.Title{})
	if f.Category != "" {
		q = q.Where("category_id IN (?)", db.Model(&domain.Category{}).Select("id").Where("slug = ?", f.Category))
	}
	if f.Genre != "" {
		q = q.Where("id IN (?)", db.Table("title_genres").
			Select("title_genres.title_id").
			Joins("JOIN genres ON genres.id = title_genres.genre_id").
			Where("genres.slug = ?", f.Genre))
	}
	if n := strings.TrimSpace(f.Name); n != "" {
		cond, pattern := ez.Like("name", n)
		q = q.Where(cond, pattern)
	}
	if f.Year != nil {
		q = q.Where("year = ?", *f.Year)
	}
	return q
}

func (s *Titles) List(ctx context.Context, f TitleFilter) ([]TitleOut, int64, error) {
	db := s.db.WithContext(ctx)
	offset, limit := f.Bounds()

	var total int64
	if err := s.scope(db, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var titles []domain.Title
	err := s.scope(db, f).
		Preload("Category").Preload("Genres").
		Order("name").Order("id").
		Limit(limit).Offset(offset).
		Find(&titles).Error
	if err != nil {
		return nil, 0, err
	}
	out, err := s.present(db, titles)
	return out, total, err
}

func (s *Titles) Get(ctx context.Context, id uint) (*TitleOut, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *Titles) get(db *gorm.DB, id uint) (*TitleOut, error) {
	var t domain.Title
	err := db.Preload("Category").Preload("Genres").First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out, err := s.present(db, []domain.Title{t})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// Exists reports domain.ErrNotFound for an unknown title id.
func (s *Titles) Exists(ctx context.Context, id uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&domain.Title{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Titles) present(db *gorm.DB, titles []domain.Title) ([]TitleOut, error) {
	ids := make([]uint, len(titles))
	for i, t := range titles {
		ids[i] = t.ID
	}
	rating, err := Ratings(db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]TitleOut, len(titles))
	for i, t := range titles {
		genres := t.Genres
		if genres == nil {
			genres = []domain.Genre{}
		}
		out[i] = TitleOut{
			ID:          t.ID,
			Name:        t.Name,
			Year:        t.Year,
			Description: t.Description,
			Genre:       genres,
			Category:    t.Category,
		}
		if r, ok := rating[t.ID]; ok {
			out[i].Rating = &r
		}
	}
	return out, nil
}

// Ratings averages review scores per title. Titles without reviews are absent.
func Ratings(db *gorm.DB, ids []uint) (map[uint]float64, error) {
	out := make(map[uint]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		TitleID uint
		Avg     float64
	}
	err := db.Model(&domain.Review{}).
		Select("title_id, AVG(score) AS avg").
		Where("title_id IN ?", ids).
		Group("title_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.TitleID] = r.Avg
	}
	return out, nil
}

// check validates in and resolves slugs. create requires name and year.
func (s *Titles) check(db *gorm.DB, in TitleInput, create bool) (*domain.Category, []domain.Genre, error) {
	v := domain.NewValidationError()
	switch {
	case in.Name == nil && create:
		v.Add("name", "this field is required")
	case in.Name != nil && strings.TrimSpace(*in.Name) == "":
		v.Add("name", "this field may not be blank")
	case in.Name != nil && utf8.RuneCountInString(*in.Name) > maxNameLen:
		v.Add("name", "ensure this field has no more than 256 characters")
	}
	switch {
	case in.Year == nil && create:
		v.Add("year", "this field is required")
	case in.Year != nil && (*in.Year < 0 || *in.Year > s.now().Year()):
		v.Add("year", "year must be between 0 and the current year")
	}

	var cat *domain.Category
	if in.Category != nil && *in.Category != "" {
		var c domain.Category
		err := db.Where("slug = ?", *in.Category).First(&c).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			v.Add("category", fmt.Sprintf("object with slug=%s does not exist", *in.Category))
		case err != nil:
			return nil, nil, err
		default:
			cat = &c
		}
	}

	var genres []domain.Genre
	if in.Genre != nil {
		slugs := dedupe(*in.Genre)
		if len(slugs) > 0 {
			if err := db.Where("slug IN ?", slugs).Find(&genres).Error; err != nil {
				return nil, nil, err
			}
		}
		found := make(map[string]bool, len(genres))
		for _, g := range genres {
			found[g.Slug] = true
		}
		for _, slug := range slugs {
			if !found[slug] {
				v.Add("genre", fmt.Sprintf("object with slug=%s does not exist", slug))
			}
		}
	}
	if !v.Empty() {
		return nil, nil, v
	}
	return cat, genres, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (s *Titles) Create(ctx context.Context, in TitleInput) (*TitleOut, error) {
	var out *TitleOut
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, genres, err := s.check(tx, in, true)
		if err != nil {
			return err
		}
		t := domain.Title{Name: strings.TrimSpace(*in.Name), Year: *in.Year, Genres: genres}
		if in.Description != nil {
			t.Description = *in.Description
		}
		if cat != nil {
			t.CategoryID = &cat.ID
		}
		if err := tx.Omit("Genres.*").Create(&t).Error; err != nil {
			return err
		}
		out, err = s.get(tx, t.ID)
		return err
	})
	return out, err
}

func (s *Titles) Update(ctx context.Context, id uint, in TitleInput) (*TitleOut, error) {
	var out *TitleOut
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Title
		if err := tx.First(&t, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		cat, genres, err := s.check(tx, in, false)
		if err != nil {
			return err
		}
		cols := map[string]any{}
		if in.Name != nil {
			cols["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Year != nil {
			cols["year"] = *in.Year
		}
		if in.Description != nil {
			cols["description"] = *in.Description
		}
		if in.Category != nil {
			if cat != nil {
				cols["category_id"] = cat.ID
			} else {
				cols["category_id"] = nil
			}
		}
		if len(cols) > 0 {
			if err := tx.Model(&t).Updates(cols).Error; err != nil {
				return err
			}
		}
		if in.Genre != nil {
			if err := tx.Model(&t).Association("Genres").Replace(genres); err != nil {
				return err
			}
		}
		out, err = s.get(tx, id)
		return err
	})
	return out, err
}

// Delete removes the title with its reviews, their comments and genre links.
func (s *Titles) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Title
		if err := tx.First(&t, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		reviewIDs := tx.Model(&domain.Review{}).Select("id").Where("title_id = ?", id)
		if err := tx.Where("review_id IN (?)", reviewIDs).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("title_id = ?", id).Delete(&domain.Review{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&t).Association("Genres").Clear(); err != nil {
			return err
		}
		return tx.Delete(&t).Error
	})
}
