// Package ez registers JSON actions on gin with one call each: bind, check
// the access policy, run (optionally inside a transaction), map errors.
package ez

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"review-api/internal/core/access"
	"review-api/internal/domain"
	mdw "review-api/internal/transport/http/middleware"
	resp "review-api/internal/transport/http/response"
)

type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

// Group returns the underlying router group.
func (e EZ) Group() *gin.RouterGroup { return e.g }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr is an error already shaped for the envelope.
type AErr struct {
	Code int
	Msg  string
	Data any
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// FromError maps domain errors onto envelope codes. Anything unrecognised
// becomes a generic 500 so storage messages never reach the client.
func FromError(err error) *AErr {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae
	}
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return &AErr{Code: resp.CodeBadRequest, Msg: "validation failed", Data: ve.Fields, Err: err}
	case errors.Is(err, domain.ErrValidation):
		return &AErr{Code: resp.CodeBadRequest, Msg: "validation failed", Err: err}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return &AErr{Code: resp.CodeBadRequest, Msg: "invalid credentials", Err: err}
	case errors.Is(err, domain.ErrConflict):
		return &AErr{Code: resp.CodeBadRequest, Msg: "already exists", Err: err}
	case errors.Is(err, domain.ErrUnauthenticated):
		return &AErr{Code: resp.CodeUnauthorized, Msg: "authentication required", Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return &AErr{Code: resp.CodeForbidden, Msg: "permission denied", Err: err}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return &AErr{Code: resp.CodeNotFound, Msg: "not found", Err: err}
	case errors.Is(err, domain.ErrDelivery):
		return &AErr{Code: resp.CodeBadGateway, Msg: "could not deliver confirmation code", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &AErr{Code: resp.CodeTimeout, Msg: "timeout", Err: err}
	}
	return &AErr{Code: resp.CodeServerError, Msg: "internal error", Err: err}
}

// Fail writes err as an envelope. The underlying error is attached to the gin
// context so the access log records it.
func Fail(c *gin.Context, err error) {
	ae := FromError(err)
	if ae.Err != nil {
		_ = c.Error(ae.Err)
	}
	c.AbortWithStatusJSON(resp.Status(ae.Code), resp.ErrorWith(ae.Code, ae.Msg, ae.Data))
}

// Authorize runs the full policy check for the current request against rec.
// Call it after fetching the record and before mutating it.
func Authorize(c *gin.Context, p access.Policy, rec access.Record) error {
	return p.Check(mdw.CallerOf(c), access.VerbOf(c.Request.Method), rec)
}

// Caller is a shortcut for middleware.CallerOf.
func Caller(c *gin.Context) access.Caller { return mdw.CallerOf(c) }

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method string // GET | POST | PUT | PATCH | DELETE
	Path   string // 例："/auth/signup"、"/titles/:title_id"
	Binder Binder
	// Policy, when set, is checked at collection level before binding.
	Policy  access.Policy
	UseTx   bool // 是否包事务（gorm.Transaction）
	Handler func(c *gin.Context, db *gorm.DB, in *I) (O, error)
}

// RegisterAction 在当前 EZ 下注册动作接口。db 可以为 nil（纯 service 动作）
func RegisterAction[I any, O any](e EZ, db *gorm.DB, a Action[I, O]) {
	h := func(c *gin.Context) {
		// 1) 鉴权
		if a.Policy != 0 {
			if err := Authorize(c, a.Policy, nil); err != nil {
				Fail(c, err)
				return
			}
		}

		// 2) 绑定入参
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			Fail(c, BindError(bindErr))
			return
		}

		// 3) 执行（可选事务）
		var out O
		var err error
		switch {
		case db == nil:
			out, err = a.Handler(c, nil, &in)
		case a.UseTx:
			err = db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
				o, e := a.Handler(c, tx, &in)
				out = o
				return e
			})
		default:
			out, err = a.Handler(c, db.WithContext(c.Request.Context()), &in)
		}

		// 4) 统一错误映射
		if err != nil {
			Fail(c, err)
			return
		}
		resp.JSON(c, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

// Page is the list envelope shared by every paged endpoint.
type Page[T any] struct {
	List  []T   `json:"list"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// PageQuery binds ?page=&size=.
type PageQuery struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Bounds normalises the query and returns offset and limit.
func (q *PageQuery) Bounds() (offset, limit int) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > maxPageSize {
		q.Size = defaultPageSize
	}
	return (q.Page - 1) * q.Size, q.Size
}

// NewPage builds a Page, never returning a null list.
func NewPage[T any](items []T, total int64, q PageQuery) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{List: items, Total: total, Page: q.Page, Size: q.Size}
}
