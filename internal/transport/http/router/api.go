package router

import (
	"github.com/gin-gonic/gin"

	"review-api/internal/transport/http/ez"
	mdw "review-api/internal/transport/http/middleware"
)

func NewAPIEngine(d Deps) *gin.Engine {
	ez.RegisterValidators()
	r := d.engine()

	// 前缀；所有接口都先解析调用者，匿名也放行，由各自 policy 决定
	api := r.Group("/api/v1")
	api.Use(mdw.Authenticate(d.JWT, d.Users, d.Log))

	mountAuthActions(api, d)
	d.modules().MountAllAPI(api)
	return r
}
