package router

import (
	"github.com/gin-gonic/gin"

	"review-api/internal/core/access"
	"review-api/internal/transport/http/ez"
	mdw "review-api/internal/transport/http/middleware"
)

func NewAdminEngine(d Deps) *gin.Engine {
	ez.RegisterValidators()
	r := d.engine()

	// 管理端 v1（统一要求 admin 角色）
	admin := r.Group("/admin/v1")
	admin.Use(mdw.Authenticate(d.JWT, d.Users, d.Log), mdw.Permit(access.AdminOnly))

	d.modules().MountAllAdmin(admin)
	MountAdminActions(admin, d.DB)
	return r
}
