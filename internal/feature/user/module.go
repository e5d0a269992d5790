// Package user mounts the user directory: admin-managed accounts and the
// caller's own profile at /users/me.
package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"review-api/internal/core/access"
	"review-api/internal/domain"
	"review-api/internal/service"
	"review-api/internal/transport/http/ez"
	mdw "review-api/internal/transport/http/middleware"
)

type Module struct {
	svc *service.UserService
}

func New(svc *service.UserService) *Module { return &Module{svc: svc} }

func (m *Module) Priority() int { return 10 }

type listQuery struct {
	ez.PageQuery
	Search string      `form:"search"`
	Role   domain.Role `form:"role"`
}

type roleInput struct {
	Role domain.Role `json:"role"`
}

func (m *Module) list(c *gin.Context, _ *gorm.DB, in *listQuery) (ez.Page[domain.User], error) {
	offset, limit := in.Bounds()
	users, total, err := m.svc.List(c.Request.Context(), domain.UserFilter{
		Search: in.Search, Role: in.Role, Offset: offset, Limit: limit,
	})
	if err != nil {
		return ez.Page[domain.User]{}, err
	}
	return ez.NewPage(users, total, in.PageQuery), nil
}

func (m *Module) MountAPI(api *gin.RouterGroup) {
	// /users/me：任何已登录用户
	me := ez.New(api.Group("/users/me", mdw.RequireAuth()))
	ez.RegisterAction(me, nil, ez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (*domain.User, error) {
			return m.svc.Me(c.Request.Context(), ez.Caller(c).ID)
		},
	})
	ez.RegisterAction(me, nil, ez.Action[domain.UserPatch, *domain.User]{
		Method: http.MethodPatch,
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, _ *gorm.DB, in *domain.UserPatch) (*domain.User, error) {
			return m.svc.UpdateMe(c.Request.Context(), ez.Caller(c).ID, *in)
		},
	})

	// 其余 /users 接口仅管理员
	users := ez.New(api.Group("/users", mdw.Permit(access.AdminOnly)))
	ez.RegisterAction(users, nil, ez.Action[listQuery, ez.Page[domain.User]]{
		Method:  http.MethodGet,
		Binder:  ez.BindQuery,
		Handler: m.list,
	})
	ez.RegisterAction(users, nil, ez.Action[service.UserInput, *domain.User]{
		Method: http.MethodPost,
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, _ *gorm.DB, in *service.UserInput) (*domain.User, error) {
			return m.svc.Create(c.Request.Context(), *in)
		},
	})
	ez.RegisterAction(users, nil, ez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/:username",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *gorm.DB, _ *struct{}) (*domain.User, error) {
			return m.svc.Get(c.Request.Context(), c.Param("username"))
		},
	})
	ez.RegisterAction(users, nil, ez.Action[domain.UserPatch, *domain.User]{
		Method: http.MethodPatch,
		Path:   "/:username",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, _ *gorm.DB, in *domain.UserPatch) (*domain.User, error) {
			return m.svc.Update(c.Request.Context(), c.Param("username"), *in)
		},
	})
	ez.RegisterAction(users, nil, ez.Action[struct{}, gin.H]{
		Method:  http.MethodDelete,
		Path:    "/:username",
		Binder:  ez.BindNone,
		Handler: m.delete,
	})
}

func (m *Module) delete(c *gin.Context, _ *gorm.DB, _ *struct{}) (gin.H, error) {
	username := c.Param("username")
	if err := m.svc.Delete(c.Request.Context(), username); err != nil {
		return nil, err
	}
	return gin.H{"username": username}, nil
}

// MountAdmin expects admin to be guarded by AdminOnly already.
func (m *Module) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin)
	ez.RegisterAction(e, nil, ez.Action[listQuery, ez.Page[domain.User]]{
		Method:  http.MethodGet,
		Path:    "/users",
		Binder:  ez.BindQuery,
		Handler: m.list,
	})
	ez.RegisterAction(e, nil, ez.Action[roleInput, *domain.User]{
		Method: http.MethodPatch,
		Path:   "/users/:username/role",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, _ *gorm.DB, in *roleInput) (*domain.User, error) {
			return m.svc.SetRole(c.Request.Context(), c.Param("username"), in.Role)
		},
	})
	ez.RegisterAction(e, nil, ez.Action[struct{}, gin.H]{
		Method:  http.MethodDelete,
		Path:    "/users/:username",
		Binder:  ez.BindNone,
		Handler: m.delete,
	})
}
