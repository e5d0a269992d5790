package domain

import "time"

type Category struct {
	ID   uint   `gorm:"primaryKey" json:"-"`
	Name string `gorm:"size:256;not null" json:"name" binding:"required,max=256"`
	Slug string `gorm:"size:50;not null;uniqueIndex" json:"slug" binding:"required,max=50,slug"`
}

type Genre struct {
	ID   uint   `gorm:"primaryKey" json:"-"`
	Name string `gorm:"size:256;not null" json:"name" binding:"required,max=256"`
	Slug string `gorm:"size:50;not null;uniqueIndex" json:"slug" binding:"required,max=50,slug"`
}

type Title struct {
	ID          uint      `gorm:"primaryKey"`
	Name        string    `gorm:"size:256;not null;index"`
	Year        int       `gorm:"not null;index"`
	Description string    `gorm:"type:text"`
	CategoryID  *uint     `gorm:"index"`
	Category    *Category `gorm:"constraint:OnDelete:SET NULL"`
	Genres      []Genre   `gorm:"many2many:title_genres"`
}

type Review struct {
	ID       uint      `gorm:"primaryKey"`
	TitleID  uint      `gorm:"not null;uniqueIndex:idx_reviews_author_title;index"`
	AuthorID uint      `gorm:"not null;uniqueIndex:idx_reviews_author_title"`
	Author   User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Text     string    `gorm:"type:text;not null"`
	Score    int       `gorm:"not null"`
	PubDate  time.Time `gorm:"autoCreateTime;index"`
}

func (r *Review) OwnerID() uint { return r.AuthorID }

type Comment struct {
	ID       uint      `gorm:"primaryKey"`
	ReviewID uint      `gorm:"not null;index"`
	AuthorID uint      `gorm:"not null;index"`
	Author   User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Text     string    `gorm:"type:text;not null"`
	PubDate  time.Time `gorm:"autoCreateTime;index"`
}

func (c *Comment) OwnerID() uint { return c.AuthorID }

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{&User{}, &Category{}, &Genre{}, &Title{}, &Review{}, &Comment{}}
}
