// Package catalog mounts categories, genres and titles.
package catalog

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"review-api/internal/core/access"
	"review-api/internal/core/cache"
	"review-api/internal/domain"
	"review-api/internal/transport/http/ez"
)

type Module struct {
	db     *gorm.DB
	titles *Titles
	cache  *cache.Cache
	ttl    time.Duration
	log    *zap.Logger
}

// New wires the module. c may be nil, in which case title reads always hit
// the database.
func New(db *gorm.DB, c *cache.Cache, ttl time.Duration, l *zap.Logger) *Module {
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{db: db, titles: NewTitles(db), cache: c, ttl: ttl, log: l}
}

func (m *Module) Priority() int { return 20 }

// Titles exposes the title store to sibling modules.
func (m *Module) Titles() *Titles { return m.titles }

func titleID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("title_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.ErrNotFound
	}
	return uint(id), nil
}

func (m *Module) MountAPI(api *gin.RouterGroup) {
	ez.Crud(ez.CrudConfig[domain.Category]{
		DB:           m.db,
		Group:        api,
		Path:         "/categories",
		New:          func() *domain.Category { return &domain.Category{} },
		Policy:       access.AdminOrReadOnly,
		AllowCreate:  true,
		AllowList:    true,
		AllowDelete:  true,
		SearchColumn: "name",
		OrderBy:      "name",
		Hooks: ez.CrudHooks[domain.Category]{
			BeforeDelete: func(c *gin.Context, tx *gorm.DB, cat *domain.Category) error {
				affected := tx.Model(&domain.Title{}).Where("category_id = ?", cat.ID)
				if err := m.forget(c, affected, "id"); err != nil {
					return err
				}
				return tx.Model(&domain.Title{}).Where("category_id = ?", cat.ID).Update("category_id", nil).Error
			},
		},
	})
	ez.Crud(ez.CrudConfig[domain.Genre]{
		DB:           m.db,
		Group:        api,
		Path:         "/genres",
		New:          func() *domain.Genre { return &domain.Genre{} },
		Policy:       access.AdminOrReadOnly,
		AllowCreate:  true,
		AllowList:    true,
		AllowDelete:  true,
		SearchColumn: "name",
		OrderBy:      "name",
		Hooks: ez.CrudHooks[domain.Genre]{
			BeforeDelete: func(c *gin.Context, tx *gorm.DB, g *domain.Genre) error {
				affected := tx.Table("title_genres").Where("genre_id = ?", g.ID)
				if err := m.forget(c, affected, "title_id"); err != nil {
					return err
				}
				return tx.Exec("DELETE FROM title_genres WHERE genre_id = ?", g.ID).Error
			},
		},
	})

	e := ez.New(api)
	ez.RegisterAction(e, nil, ez.Action[TitleFilter, ez.Page[TitleOut]]{
		Method:  http.MethodGet,
		Path:    "/titles",
		Binder:  ez.BindQuery,
		Policy:  access.AdminOrReadOnly,
		Handler: m.listTitles,
	})
	ez.RegisterAction(e, nil, ez.Action[TitleInput, *TitleOut]{
		Method: http.MethodPost,
		Path:   "/titles",
		Binder: ez.BindJSON,
		Policy: access.AdminOrReadOnly,
		Handler: func(c *gin.Context, _ *gorm.DB, in *TitleInput) (*TitleOut, error) {
			out, err := m.titles.Create(c.Request.Context(), *in)
			if err == nil {
				m.log.Info("title created", zap.Uint("title_id", out.ID))
			}
			return out, err
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, *TitleOut]{
		Method:  http.MethodGet,
		Path:    "/titles/:title_id",
		Binder:  ez.BindNone,
		Policy:  access.AdminOrReadOnly,
		Handler: m.getTitle,
	})
	ez.RegisterAction(e, nil, ez.Action[TitleInput, *TitleOut]{
		Method: http.MethodPatch,
		Path:   "/titles/:title_id",
		Binder: ez.BindJSON,
		Policy: access.AdminOrReadOnly,
		Handler: func(c *gin.Context, _ *gorm.DB, in *TitleInput) (*TitleOut, error) {
			id, err := titleID(c)
			if err != nil {
				return nil, err
			}
			out, err := m.titles.Update(c.Request.Context(), id, *in)
			m.cache.Invalidate(c.Request.Context(), CacheKey(id))
			return out, err
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "/titles/:title_id",
		Binder: ez.BindNone,
		Policy: access.AdminOrReadOnly,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (gin.H, error) {
			id, err := titleID(c)
			if err != nil {
				return nil, err
			}
			if err := m.titles.Delete(c.Request.Context(), id); err != nil {
				return nil, err
			}
			m.cache.Invalidate(c.Request.Context(), CacheKey(id))
			m.log.Info("title deleted", zap.Uint("title_id", id))
			return gin.H{"id": id}, nil
		},
	})
}

// forget drops the cached read shapes of the titles whose ids sit in column.
func (m *Module) forget(c *gin.Context, q *gorm.DB, column string) error {
	var found []uint
	if err := q.Pluck(column, &found).Error; err != nil {
		return err
	}
	keys := make([]string, len(found))
	for i, id := range found {
		keys[i] = CacheKey(id)
	}
	m.cache.Invalidate(c.Request.Context(), keys...)
	return nil
}

func (m *Module) listTitles(c *gin.Context, _ *gorm.DB, in *TitleFilter) (ez.Page[TitleOut], error) {
	items, total, err := m.titles.List(c.Request.Context(), *in)
	if err != nil {
		return ez.Page[TitleOut]{}, err
	}
	return ez.NewPage(items, total, in.PageQuery), nil
}

func (m *Module) getTitle(c *gin.Context, _ *gorm.DB, _ *struct{}) (*TitleOut, error) {
	id, err := titleID(c)
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoadJSON(m.cache, c.Request.Context(), CacheKey(id), m.ttl, func(ctx context.Context) (*TitleOut, error) {
		return m.titles.Get(ctx, id)
	})
}

// MountAdmin expects admin to be guarded by AdminOnly already.
func (m *Module) MountAdmin(admin *gin.RouterGroup) {
	ez.RegisterAction(ez.New(admin), nil, ez.Action[TitleFilter, ez.Page[TitleOut]]{
		Method:  http.MethodGet,
		Path:    "/titles",
		Binder:  ez.BindQuery,
		Handler: m.listTitles,
	})
}
