package ez

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"review-api/internal/domain"
)

var (
	slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
	registerMu  sync.Once
)

// RegisterValidators installs the custom "slug" tag and makes validation
// errors report JSON field names. Safe to call more than once.
func RegisterValidators() {
	registerMu.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})
	})
}

// BindError converts gin binding failures into a field-level validation error.
func BindError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return domain.Invalid("non_field_errors", "malformed request body")
	}
	v := domain.NewValidationError()
	for _, fe := range ves {
		v.Add(fe.Field(), tagMessage(fe))
	}
	return v
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return "ensure this field has no more than " + fe.Param() + " characters"
	case "min", "gte":
		return "ensure this value is greater than or equal to " + fe.Param()
	case "lte":
		return "ensure this value is less than or equal to " + fe.Param()
	case "slug":
		return "enter a valid slug consisting of letters, numbers, underscores or hyphens"
	case "email":
		return "enter a valid email address"
	}
	return "invalid value"
}
