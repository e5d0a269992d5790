package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleAnonymous Role = "anonymous" // callers only, never stored
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Storable reports whether r may be persisted on a User.
func (r Role) Storable() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// User is the identity record. Username and email are unique on their own and
// as a pair. ConfirmationCode holds the bcrypt hash of the last issued code.
type User struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	Username         string    `gorm:"size:150;not null;uniqueIndex:idx_users_username;uniqueIndex:idx_users_username_email" json:"username"`
	Email            string    `gorm:"size:254;not null;uniqueIndex:idx_users_email;uniqueIndex:idx_users_username_email" json:"email"`
	FirstName        string    `gorm:"size:150" json:"first_name"`
	LastName         string    `gorm:"size:150" json:"last_name"`
	Bio              string    `gorm:"type:text" json:"bio"`
	Role             Role      `gorm:"size:16;not null;default:user" json:"role"`
	IsSuperuser      bool      `gorm:"not null;default:false" json:"-"`
	ConfirmationCode string    `gorm:"size:256" json:"-"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// UserPatch is a partial update; nil fields are left untouched.
type UserPatch struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Role      *Role   `json:"role"`
}

// Columns returns the column map for a gorm Updates call.
func (p UserPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.Username != nil {
		cols["username"] = *p.Username
	}
	if p.Email != nil {
		cols["email"] = *p.Email
	}
	if p.FirstName != nil {
		cols["first_name"] = *p.FirstName
	}
	if p.LastName != nil {
		cols["last_name"] = *p.LastName
	}
	if p.Bio != nil {
		cols["bio"] = *p.Bio
	}
	if p.Role != nil {
		cols["role"] = *p.Role
	}
	return cols
}

type UserFilter struct {
	Search string
	Role   Role
	Offset int
	Limit  int
}

// UserRepository is the credential store. Lookups return ErrNotFound when the
// record is absent; writes return ErrConflict on a uniqueness violation.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id uint) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f UserFilter) ([]User, int64, error)
	Update(ctx context.Context, id uint, cols map[string]any) error
	SetConfirmationCode(ctx context.Context, id uint, hash string) error
	// Delete also removes the user's reviews and comments and returns the ids
	// of the titles that lost a review.
	Delete(ctx context.Context, id uint) ([]uint, error)
}
