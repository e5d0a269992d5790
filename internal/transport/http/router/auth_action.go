package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"review-api/internal/service"
	"review-api/internal/transport/http/ez"
)

// mountAuthActions 挂载公共的 /auth/signup 与 /auth/token
func mountAuthActions(api *gin.RouterGroup, d Deps) {
	e := ez.New(api.Group("/auth"))

	ez.RegisterAction(e, nil, ez.Action[service.SignupInput, service.SignupInput]{
		Method: http.MethodPost,
		Path:   "/signup",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, _ *gorm.DB, in *service.SignupInput) (service.SignupInput, error) {
			return d.Issuer.RequestCode(c.Request.Context(), *in)
		},
	})

	ez.RegisterAction(e, nil, ez.Action[service.TokenInput, service.Token]{
		Method: http.MethodPost,
		Path:   "/token",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, _ *gorm.DB, in *service.TokenInput) (service.Token, error) {
			return d.Exchange.Exchange(c.Request.Context(), *in)
		},
	})
}
