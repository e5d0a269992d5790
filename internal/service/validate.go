package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"review-api/internal/domain"
)

const (
	maxUsernameLen = 150
	maxEmailLen    = 254
)

var (
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
	validate        = validator.New()
)

func checkUsername(v *domain.ValidationError, username, reserved string) {
	switch {
	case username == "":
		v.Add("username", "this field is required")
	case len(username) > maxUsernameLen:
		v.Add("username", "ensure this field has no more than 150 characters")
	case !usernamePattern.MatchString(username):
		v.Add("username", "enter a valid username: letters, digits and @/./+/-/_ only")
	case reserved != "" && username == reserved:
		v.Add("username", "can not use that name")
	}
}

func checkEmail(v *domain.ValidationError, email string) {
	switch {
	case email == "":
		v.Add("email", "this field is required")
	case len(email) > maxEmailLen || validate.Var(email, "email") != nil:
		v.Add("email", "enter a valid email address")
	}
}

// checkTaken reports username/email collisions with records other than self.
// self is 0 for a record that does not exist yet.
func checkTaken(ctx context.Context, users domain.UserRepository, v *domain.ValidationError, self uint, username, email string) error {
	if username != "" {
		u, err := users.FindByUsername(ctx, username)
		switch {
		case err == nil && u.ID != self:
			v.Add("username", "username is already in use")
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	if email != "" {
		u, err := users.FindByEmail(ctx, email)
		switch {
		case err == nil && u.ID != self:
			v.Add("email", "email is already in use")
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}

func normEmail(s string) string { return strings.TrimSpace(s) }
