package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"review-api/internal/core/auth"
	"review-api/internal/core/cache"
	"review-api/internal/core/config"
	"review-api/internal/core/server"
	"review-api/internal/domain"
	"review-api/internal/feature/catalog"
	"review-api/internal/feature/review"
	"review-api/internal/feature/user"
	"review-api/internal/service"
	mdw "review-api/internal/transport/http/middleware"
)

// Deps is everything the engines need, assembled by cmd/*.
type Deps struct {
	Log      *zap.Logger
	DB       *gorm.DB
	JWT      *auth.JWTer
	Users    domain.UserRepository
	UserSvc  *service.UserService
	Issuer   *service.Issuer
	Exchange *service.Exchanger
	Cache    *cache.Cache
	TitleTTL time.Duration
	Limits   config.Limits
}

// modules builds the feature modules shared by both engines.
func (d Deps) modules() *Registry {
	cat := catalog.New(d.DB, d.Cache, d.TitleTTL, d.Log)
	reg := &Registry{}
	reg.Register(
		user.New(d.UserSvc),
		cat,
		review.New(d.DB, cat.Titles(), d.Cache, d.Log),
	)
	return reg
}

// engine builds a gin engine with the shared middleware chain, /health and /metrics.
func (d Deps) engine() *gin.Engine {
	r := server.NewRouter(d.Log)
	lim := d.Limits

	// 中间件：日志/指标在最外层，能看到 recovery 之后的状态码
	chain := []gin.HandlerFunc{
		mdw.RequestID(),
		mdw.AccessLog(d.Log),
		mdw.Metrics(),
		mdw.SimpleRecovery(d.Log),
	}
	if lim.RPS > 0 {
		chain = append(chain, mdw.RateLimit(rate.Limit(lim.RPS), lim.Burst))
	}
	if lim.PerIPRPS > 0 {
		chain = append(chain, mdw.RateLimitPerIP(rate.Limit(lim.PerIPRPS), lim.PerIPBurst, 10*time.Minute))
	}
	if lim.Concurrency > 0 {
		chain = append(chain, mdw.ConcurrencyLimit(lim.Concurrency))
	}
	if lim.MaxBodyBytes > 0 {
		chain = append(chain, mdw.MaxBodyBytes(lim.MaxBodyBytes))
	}
	chain = append(chain, mdw.Timeout(lim.RequestTimeout))
	r.Use(chain...)

	// 健康检查
	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": 1}) })
	r.GET("/metrics", mdw.MetricsHandler())
	return r
}
