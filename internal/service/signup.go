package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"review-api/internal/core/notify"
	"review-api/internal/domain"
	"review-api/pkg/utils"
)

type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type IssuerOptions struct {
	CodeLength       int
	BcryptCost       int
	ReservedUsername string
	From             string
	Subject          string
}

// Issuer registers identities and sends them confirmation codes.
type Issuer struct {
	users    domain.UserRepository
	notifier notify.Notifier
	opts     IssuerOptions
	log      *zap.Logger
}

func NewIssuer(users domain.UserRepository, n notify.Notifier, opts IssuerOptions, l *zap.Logger) *Issuer {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 20
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Issuer{users: users, notifier: n, opts: opts, log: l}
}

// RequestCode creates the identity on first use (role user) or refreshes its
// code hash, then mails the plaintext code. A delivery failure is returned
// wrapped in domain.ErrDelivery; the new hash stays committed.
func (s *Issuer) RequestCode(ctx context.Context, in SignupInput) (SignupInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normEmail(in.Email)

	v := domain.NewValidationError()
	checkUsername(v, in.Username, s.opts.ReservedUsername)
	checkEmail(v, in.Email)
	if !v.Empty() {
		return SignupInput{}, v
	}

	existing, err := s.users.FindByUsername(ctx, in.Username)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		existing = nil
	case err != nil:
		return SignupInput{}, err
	case existing.Email != in.Email:
		existing = nil // collision, reported below
	}
	var self uint
	if existing != nil {
		self = existing.ID
	}
	if err := checkTaken(ctx, s.users, v, self, in.Username, in.Email); err != nil {
		return SignupInput{}, err
	}
	if !v.Empty() {
		return SignupInput{}, v
	}

	code, err := utils.RandomString(s.opts.CodeLength, utils.Alphanumeric)
	if err != nil {
		return SignupInput{}, fmt.Errorf("generate code: %w", err)
	}
	hash, err := utils.HashSecret(code, s.opts.BcryptCost)
	if err != nil {
		return SignupInput{}, fmt.Errorf("hash code: %w", err)
	}

	if existing != nil {
		if err := s.users.SetConfirmationCode(ctx, existing.ID, hash); err != nil {
			return SignupInput{}, err
		}
	} else {
		u := &domain.User{Username: in.Username, Email: in.Email, Role: domain.RoleUser, ConfirmationCode: hash}
		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return SignupInput{}, s.conflict(ctx, in)
			}
			return SignupInput{}, err
		}
		s.log.Info("identity created", zap.String("username", in.Username))
	}

	err = s.notifier.Send(ctx, notify.Message{
		Subject: s.opts.Subject,
		Body:    code,
		From:    s.opts.From,
		To:      []string{in.Email},
	})
	if err != nil {
		s.log.Warn("confirmation code delivery failed", zap.String("username", in.Username), zap.Error(err))
		return SignupInput{}, fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	s.log.Info("confirmation code issued", zap.String("username", in.Username))
	return in, nil
}

// conflict explains a uniqueness race lost to a concurrent sign-up.
func (s *Issuer) conflict(ctx context.Context, in SignupInput) error {
	v := domain.NewValidationError()
	if err := checkTaken(ctx, s.users, v, 0, in.Username, in.Email); err != nil {
		return err
	}
	if v.Empty() {
		v.Add("username", "username or email is already in use")
	}
	return v
}
