// Package review mounts reviews under titles and comments under reviews.
package review

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"review-api/internal/core/access"
	"review-api/internal/core/cache"
	"review-api/internal/domain"
	"review-api/internal/feature/catalog"
	"review-api/internal/transport/http/ez"
)

const (
	reviewPolicy  = access.ReviewOwnerOrElevatedOrReadOnly
	commentPolicy = access.CommentOwnerOrElevatedOrReadOnly

	reviewsPath  = "/titles/:title_id/reviews"
	reviewPath   = reviewsPath + "/:review_id"
	commentsPath = reviewPath + "/comments"
	commentPath  = commentsPath + "/:comment_id"
)

type Module struct {
	db     *gorm.DB
	store  *Store
	titles *catalog.Titles
	cache  *cache.Cache
	log    *zap.Logger
}

func New(db *gorm.DB, titles *catalog.Titles, c *cache.Cache, l *zap.Logger) *Module {
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{db: db, store: NewStore(db), titles: titles, cache: c, log: l}
}

func (m *Module) Priority() int { return 30 }

func param(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.ErrNotFound
	}
	return uint(id), nil
}

// title resolves :title_id to an existing title.
func (m *Module) title(c *gin.Context) (uint, error) {
	id, err := param(c, "title_id")
	if err != nil {
		return 0, err
	}
	return id, m.titles.Exists(c.Request.Context(), id)
}

// review resolves :title_id/:review_id, 404 when the review is elsewhere.
func (m *Module) review(c *gin.Context) (*domain.Review, error) {
	tid, err := param(c, "title_id")
	if err != nil {
		return nil, err
	}
	rid, err := param(c, "review_id")
	if err != nil {
		return nil, err
	}
	return m.store.Review(c.Request.Context(), tid, rid)
}

func (m *Module) comment(c *gin.Context) (*domain.Comment, error) {
	r, err := m.review(c)
	if err != nil {
		return nil, err
	}
	cid, err := param(c, "comment_id")
	if err != nil {
		return nil, err
	}
	return m.store.Comment(c.Request.Context(), r.ID, cid)
}

// rated drops the cached title whose rating just changed.
func (m *Module) rated(ctx context.Context, titleID uint) {
	m.cache.Invalidate(ctx, catalog.CacheKey(titleID))
}

func (m *Module) MountAPI(api *gin.RouterGroup) {
	e := ez.New(api)
	m.mountReviews(e)
	m.mountComments(e)
}

func (m *Module) mountReviews(e ez.EZ) {
	ez.RegisterAction(e, nil, ez.Action[ez.PageQuery, ez.Page[ReviewOut]]{
		Method: http.MethodGet,
		Path:   reviewsPath,
		Binder: ez.BindQuery,
		Policy: reviewPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, pq *ez.PageQuery) (ez.Page[ReviewOut], error) {
			tid, err := m.title(c)
			if err != nil {
				return ez.Page[ReviewOut]{}, err
			}
			items, total, err := m.store.ListReviews(c.Request.Context(), tid, *pq)
			if err != nil {
				return ez.Page[ReviewOut]{}, err
			}
			return ez.NewPage(items, total, *pq), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[ReviewInput, ReviewOut]{
		Method: http.MethodPost,
		Path:   reviewsPath,
		Binder: ez.BindJSON,
		Policy: reviewPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, in *ReviewInput) (ReviewOut, error) {
			tid, err := m.title(c)
			if err != nil {
				return ReviewOut{}, err
			}
			r, err := m.store.CreateReview(c.Request.Context(), tid, ez.Caller(c).ID, *in)
			if err != nil {
				return ReviewOut{}, err
			}
			m.rated(c.Request.Context(), tid)
			return reviewOut(r), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, ReviewOut]{
		Method: http.MethodGet,
		Path:   reviewPath,
		Binder: ez.BindNone,
		Policy: reviewPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (ReviewOut, error) {
			r, err := m.review(c)
			if err != nil {
				return ReviewOut{}, err
			}
			return reviewOut(r), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[ReviewInput, ReviewOut]{
		Method: http.MethodPatch,
		Path:   reviewPath,
		Binder: ez.BindJSON,
		Policy: reviewPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, in *ReviewInput) (ReviewOut, error) {
			r, err := m.review(c)
			if err != nil {
				return ReviewOut{}, err
			}
			if err := ez.Authorize(c, reviewPolicy, r); err != nil {
				return ReviewOut{}, err
			}
			r, err = m.store.UpdateReview(c.Request.Context(), r, *in)
			if err != nil {
				return ReviewOut{}, err
			}
			m.rated(c.Request.Context(), r.TitleID)
			return reviewOut(r), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   reviewPath,
		Binder: ez.BindNone,
		Policy: reviewPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (gin.H, error) {
			r, err := m.review(c)
			if err != nil {
				return nil, err
			}
			if err := ez.Authorize(c, reviewPolicy, r); err != nil {
				return nil, err
			}
			if err := m.store.DeleteReview(c.Request.Context(), r); err != nil {
				return nil, err
			}
			m.rated(c.Request.Context(), r.TitleID)
			m.log.Info("review deleted", zap.Uint("review_id", r.ID), zap.Uint("by", ez.Caller(c).ID))
			return gin.H{"id": r.ID}, nil
		},
	})
}

func (m *Module) mountComments(e ez.EZ) {
	ez.RegisterAction(e, nil, ez.Action[ez.PageQuery, ez.Page[CommentOut]]{
		Method: http.MethodGet,
		Path:   commentsPath,
		Binder: ez.BindQuery,
		Policy: commentPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, pq *ez.PageQuery) (ez.Page[CommentOut], error) {
			r, err := m.review(c)
			if err != nil {
				return ez.Page[CommentOut]{}, err
			}
			items, total, err := m.store.ListComments(c.Request.Context(), r.ID, *pq)
			if err != nil {
				return ez.Page[CommentOut]{}, err
			}
			return ez.NewPage(items, total, *pq), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[CommentInput, CommentOut]{
		Method: http.MethodPost,
		Path:   commentsPath,
		Binder: ez.BindJSON,
		Policy: commentPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, in *CommentInput) (CommentOut, error) {
			r, err := m.review(c)
			if err != nil {
				return CommentOut{}, err
			}
			cm, err := m.store.CreateComment(c.Request.Context(), r.ID, ez.Caller(c).ID, *in)
			if err != nil {
				return CommentOut{}, err
			}
			return commentOut(cm), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, CommentOut]{
		Method: http.MethodGet,
		Path:   commentPath,
		Binder: ez.BindNone,
		Policy: commentPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (CommentOut, error) {
			cm, err := m.comment(c)
			if err != nil {
				return CommentOut{}, err
			}
			return commentOut(cm), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[CommentInput, CommentOut]{
		Method: http.MethodPatch,
		Path:   commentPath,
		Binder: ez.BindJSON,
		Policy: commentPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, in *CommentInput) (CommentOut, error) {
			cm, err := m.comment(c)
			if err != nil {
				return CommentOut{}, err
			}
			if err := ez.Authorize(c, commentPolicy, cm); err != nil {
				return CommentOut{}, err
			}
			cm, err = m.store.UpdateComment(c.Request.Context(), cm, *in)
			if err != nil {
				return CommentOut{}, err
			}
			return commentOut(cm), nil
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   commentPath,
		Binder: ez.BindNone,
		Policy: commentPolicy,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (gin.H, error) {
			cm, err := m.comment(c)
			if err != nil {
				return nil, err
			}
			if err := ez.Authorize(c, commentPolicy, cm); err != nil {
				return nil, err
			}
			if err := m.store.DeleteComment(c.Request.Context(), cm); err != nil {
				return nil, err
			}
			return gin.H{"id": cm.ID}, nil
		},
	})
}

type reviewFilter struct {
	ez.PageQuery
	Title uint `form:"title"`
}

type commentFilter struct {
	ez.PageQuery
	Review uint `form:"review"`
}

// MountAdmin expects admin to be guarded by AdminOnly already.
func (m *Module) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin)
	ez.RegisterAction(e, m.db, ez.Action[reviewFilter, ez.Page[ReviewOut]]{
		Method: http.MethodGet,
		Path:   "/reviews",
		Binder: ez.BindQuery,
		Handler: func(_ *gin.Context, db *gorm.DB, in *reviewFilter) (ez.Page[ReviewOut], error) {
			offset, limit := in.Bounds()
			q := db.Model(&domain.Review{})
			if in.Title != 0 {
				q = q.Where("title_id = ?", in.Title)
			}
			var total int64
			if err := q.Count(&total).Error; err != nil {
				return ez.Page[ReviewOut]{}, err
			}
			var rows []domain.Review
			if err := q.Preload("Author").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
				return ez.Page[ReviewOut]{}, err
			}
			out := make([]ReviewOut, len(rows))
			for i := range rows {
				out[i] = reviewOut(&rows[i])
			}
			return ez.NewPage(out, total, in.PageQuery), nil
		},
	})
	ez.RegisterAction(e, m.db, ez.Action[commentFilter, ez.Page[CommentOut]]{
		Method: http.MethodGet,
		Path:   "/comments",
		Binder: ez.BindQuery,
		Handler: func(_ *gin.Context, db *gorm.DB, in *commentFilter) (ez.Page[CommentOut], error) {
			offset, limit := in.Bounds()
			q := db.Model(&domain.Comment{})
			if in.Review != 0 {
				q = q.Where("review_id = ?", in.Review)
			}
			var total int64
			if err := q.Count(&total).Error; err != nil {
				return ez.Page[CommentOut]{}, err
			}
			var rows []domain.Comment
			if err := q.Preload("Author").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
				return ez.Page[CommentOut]{}, err
			}
			out := make([]CommentOut, len(rows))
			for i := range rows {
				out[i] = commentOut(&rows[i])
			}
			return ez.NewPage(out, total, in.PageQuery), nil
		},
	})
}
