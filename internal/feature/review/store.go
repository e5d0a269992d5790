package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"review-api/internal/core/database"
	"review-api/internal/domain"
	"review-api/internal/transport/http/ez"
)

const (
	minScore = 1
	maxScore = 10
)

type ReviewOut struct {
	ID      uint      `json:"id"`
	Title   uint      `json:"title"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	Score   int       `json:"score"`
	PubDate time.Time `json:"pub_date"`
}

type ReviewInput struct {
	Text  *string `json:"text"`
	Score *int    `json:"score"`
}

type CommentOut struct {
	ID      uint      `json:"id"`
	Review  uint      `json:"review"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	PubDate time.Time `json:"pub_date"`
}

type CommentInput struct {
	Text *string `json:"text"`
}

func reviewOut(r *domain.Review) ReviewOut {
	return ReviewOut{ID: r.ID, Title: r.TitleID, Text: r.Text, Author: r.Author.Username, Score: r.Score, PubDate: r.PubDate}
}

func commentOut(c *domain.Comment) CommentOut {
	return CommentOut{ID: c.ID, Review: c.ReviewID, Text: c.Text, Author: c.Author.Username, PubDate: c.PubDate}
}

// Store persists reviews and comments. Lookups are always scoped by parent, so
// a review under the wrong title is reported as not found.
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func checkText(v *domain.ValidationError, text *string, create bool) {
	switch {
	case text == nil && create:
		v.Add("text", "this field is required")
	case text != nil && strings.TrimSpace(*text) == "":
		v.Add("text", "this field may not be blank")
	}
}

func checkReview(in ReviewInput, create bool) error {
	v := domain.NewValidationError()
	checkText(v, in.Text, create)
	switch {
	case in.Score == nil && create:
		v.Add("score", "this field is required")
	case in.Score != nil && (*in.Score < minScore || *in.Score > maxScore):
		v.Add("score", "score must be between 1 and 10")
	}
	return v.OrNil()
}

func alreadyReviewed() error {
	return domain.Invalid("non_field_errors", "you have already reviewed this title")
}

func (s *Store) ListReviews(ctx context.Context, titleID uint, pq ez.PageQuery) ([]ReviewOut, int64, error) {
	offset, limit := pq.Bounds()
	q := s.db.WithContext(ctx).Model(&domain.Review{}).Where("title_id = ?", titleID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []domain.Review
	if err := q.Preload("Author").Order("pub_date DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]ReviewOut, len(rows))
	for i := range rows {
		out[i] = reviewOut(&rows[i])
	}
	return out, total, nil
}

func (s *Store) Review(ctx context.Context, titleID, reviewID uint) (*domain.Review, error) {
	var r domain.Review
	err := s.db.WithContext(ctx).Preload("Author").
		Where("id = ? AND title_id = ?", reviewID, titleID).
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) CreateReview(ctx context.Context, titleID, authorID uint, in ReviewInput) (*domain.Review, error) {
	if err := checkReview(in, true); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&domain.Review{}).Where("title_id = ? AND author_id = ?", titleID, authorID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, alreadyReviewed()
	}
	r := domain.Review{TitleID: titleID, AuthorID: authorID, Text: *in.Text, Score: *in.Score}
	if err := db.Omit("Author").Create(&r).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, alreadyReviewed()
		}
		return nil, err
	}
	return s.Review(ctx, titleID, r.ID)
}

func (s *Store) UpdateReview(ctx context.Context, r *domain.Review, in ReviewInput) (*domain.Review, error) {
	if err := checkReview(in, false); err != nil {
		return nil, err
	}
	cols := map[string]any{}
	if in.Text != nil {
		cols["text"] = *in.Text
	}
	if in.Score != nil {
		cols["score"] = *in.Score
	}
	if len(cols) > 0 {
		if err := s.db.WithContext(ctx).Model(&domain.Review{}).Where("id = ?", r.ID).Updates(cols).Error; err != nil {
			return nil, err
		}
	}
	return s.Review(ctx, r.TitleID, r.ID)
}

// DeleteReview removes the review and its comments.
func (s *Store) DeleteReview(ctx context.Context, r *domain.Review) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("review_id = ?", r.ID).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Review{}, r.ID).Error
	})
}

func (s *Store) ListComments(ctx context.Context, reviewID uint, pq ez.PageQuery) ([]CommentOut, int64, error) {
	offset, limit := pq.Bounds()
	q := s.db.WithContext(ctx).Model(&domain.Comment{}).Where("review_id = ?", reviewID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []domain.Comment
	if err := q.Preload("Author").Order("pub_date").Order("id").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]CommentOut, len(rows))
	for i := range rows {
		out[i] = commentOut(&rows[i])
	}
	return out, total, nil
}

func (s *Store) Comment(ctx context.Context, reviewID, commentID uint) (*domain.Comment, error) {
	var c domain.Comment
	err := s.db.WithContext(ctx).Preload("Author").
		Where("id = ? AND review_id = ?", commentID, reviewID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateComment(ctx context.Context, reviewID, authorID uint, in CommentInput) (*domain.Comment, error) {
	v := domain.NewValidationError()
	checkText(v, in.Text, true)
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	c := domain.Comment{ReviewID: reviewID, AuthorID: authorID, Text: *in.Text}
	if err := s.db.WithContext(ctx).Omit("Author").Create(&c).Error; err != nil {
		return nil, err
	}
	return s.Comment(ctx, reviewID, c.ID)
}

func (s *Store) UpdateComment(ctx context.Context, c *domain.Comment, in CommentInput) (*domain.Comment, error) {
	v := domain.NewValidationError()
	checkText(v, in.Text, false)
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if in.Text != nil {
		if err := s.db.WithContext(ctx).Model(&domain.Comment{}).Where("id = ?", c.ID).Update("text", *in.Text).Error; err != nil {
			return nil, err
		}
	}
	return s.Comment(ctx, c.ReviewID, c.ID)
}

func (s *Store) DeleteComment(ctx context.Context, c *domain.Comment) error {
	return s.db.WithContext(ctx).Delete(&domain.Comment{}, c.ID).Error
}
