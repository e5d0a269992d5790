package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"review-api/internal/domain"
	"review-api/internal/feature/catalog"
)

type UserInput struct {
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Bio       string      `json:"bio"`
	Role      domain.Role `json:"role"`
}

// TitleCache drops cached title reads; *cache.Cache satisfies it.
type TitleCache interface {
	Invalidate(ctx context.Context, keys ...string)
}

type UserService struct {
	users    domain.UserRepository
	reserved string
	titles   TitleCache
	log      *zap.Logger
}

func NewUserService(users domain.UserRepository, reservedUsername string, l *zap.Logger) *UserService {
	if l == nil {
		l = zap.NewNop()
	}
	return &UserService{users: users, reserved: reservedUsername, log: l}
}

// WithTitleCache makes Delete evict the titles whose rating the user affected.
func (s *UserService) WithTitleCache(c TitleCache) *UserService {
	s.titles = c
	return s
}

func (s *UserService) List(ctx context.Context, f domain.UserFilter) ([]domain.User, int64, error) {
	return s.users.List(ctx, f)
}

func (s *UserService) Get(ctx context.Context, username string) (*domain.User, error) {
	return s.users.FindByUsername(ctx, username)
}

func (s *UserService) Me(ctx context.Context, id uint) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) Create(ctx context.Context, in UserInput) (*domain.User, error) {
	return s.create(ctx, in, false)
}

// CreateSuperuser registers an admin with the superuser flag set.
func (s *UserService) CreateSuperuser(ctx context.Context, username, email string) (*domain.User, error) {
	return s.create(ctx, UserInput{Username: username, Email: email, Role: domain.RoleAdmin}, true)
}

func (s *UserService) create(ctx context.Context, in UserInput, superuser bool) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normEmail(in.Email)
	if in.Role == "" {
		in.Role = domain.RoleUser
	}

	v := domain.NewValidationError()
	checkUsername(v, in.Username, s.reserved)
	checkEmail(v, in.Email)
	if !in.Role.Storable() {
		v.Add("role", "not a valid choice")
	}
	if err := checkTaken(ctx, s.users, v, 0, in.Username, in.Email); err != nil {
		return nil, err
	}
	if !v.Empty() {
		return nil, v
	}

	u := &domain.User{
		Username:    in.Username,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Bio:         in.Bio,
		Role:        in.Role,
		IsSuperuser: superuser,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Invalid("username", "username or email is already in use")
		}
		return nil, err
	}
	s.log.Info("user created", zap.String("username", u.Username), zap.String("role", string(u.Role)), zap.Bool("superuser", superuser))
	return u, nil
}

// Update applies an admin's partial update to the user named username.
func (s *UserService) Update(ctx context.Context, username string, p domain.UserPatch) (*domain.User, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, u, p)
}

// UpdateMe applies a self-service partial update. Callers whose stored role is
// user cannot change it: any submitted role is replaced with user.
func (s *UserService) UpdateMe(ctx context.Context, id uint, p domain.UserPatch) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == domain.RoleUser && p.Role != nil {
		role := domain.RoleUser
		p.Role = &role
	}
	return s.apply(ctx, u, p)
}

func (s *UserService) SetRole(ctx context.Context, username string, role domain.Role) (*domain.User, error) {
	return s.Update(ctx, username, domain.UserPatch{Role: &role})
}

func (s *UserService) Delete(ctx context.Context, username string) error {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	titleIDs, err := s.users.Delete(ctx, u.ID)
	if err != nil {
		return err
	}
	if s.titles != nil && len(titleIDs) > 0 {
		keys := make([]string, len(titleIDs))
		for i, id := range titleIDs {
			keys[i] = catalog.CacheKey(id)
		}
		s.titles.Invalidate(ctx, keys...)
	}
	s.log.Info("user deleted", zap.String("username", username), zap.Int("titles_rerated", len(titleIDs)))
	return nil
}

func (s *UserService) apply(ctx context.Context, u *domain.User, p domain.UserPatch) (*domain.User, error) {
	v := domain.NewValidationError()
	var username, email string
	if p.Username != nil {
		*p.Username = strings.TrimSpace(*p.Username)
		checkUsername(v, *p.Username, s.reserved)
		if *p.Username != u.Username {
			username = *p.Username
		}
	}
	if p.Email != nil {
		*p.Email = normEmail(*p.Email)
		checkEmail(v, *p.Email)
		if *p.Email != u.Email {
			email = *p.Email
		}
	}
	if p.Role != nil && !p.Role.Storable() {
		v.Add("role", "not a valid choice")
	}
	if err := checkTaken(ctx, s.users, v, u.ID, username, email); err != nil {
		return nil, err
	}
	if !v.Empty() {
		return nil, v
	}

	if err := s.users.Update(ctx, u.ID, p.Columns()); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Invalid("username", "username or email is already in use")
		}
		return nil, err
	}
	return s.users.FindByID(ctx, u.ID)
}
