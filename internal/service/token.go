package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"review-api/internal/domain"
	"review-api/pkg/utils"
)

type TokenInput struct {
	Username         string `json:"username"`
	ConfirmationCode string `json:"confirmation_code"`
}

type Token struct {
	AccessToken string `json:"access_token"`
}

type TokenIssuer interface {
	Issue(uid uint) (string, error)
}

// Exchanger trades a confirmation code for an access token. The stored hash is
// left in place, so a code can be exchanged again until the next sign-up.
type Exchanger struct {
	users  domain.UserRepository
	tokens TokenIssuer
	log    *zap.Logger
}

func NewExchanger(users domain.UserRepository, tokens TokenIssuer, l *zap.Logger) *Exchanger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Exchanger{users: users, tokens: tokens, log: l}
}

func (s *Exchanger) Exchange(ctx context.Context, in TokenInput) (Token, error) {
	username := strings.TrimSpace(in.Username)
	v := domain.NewValidationError()
	if username == "" {
		v.Add("username", "this field is required")
	}
	if in.ConfirmationCode == "" {
		v.Add("confirmation_code", "this field is required")
	}
	if !v.Empty() {
		return Token{}, v
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return Token{}, err // domain.ErrNotFound for unknown usernames
	}
	if !utils.CheckSecret(in.ConfirmationCode, u.ConfirmationCode) {
		s.log.Info("confirmation code rejected", zap.String("username", username))
		return Token{}, domain.ErrInvalidCredentials
	}
	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	s.log.Info("access token issued", zap.String("username", username))
	return Token{AccessToken: tok}, nil
}
