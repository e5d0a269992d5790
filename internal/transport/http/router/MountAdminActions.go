package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"review-api/internal/domain"
	"review-api/internal/transport/http/ez"
)

type statsOut struct {
	Users    int64 `json:"users"`
	Titles   int64 `json:"titles"`
	Reviews  int64 `json:"reviews"`
	Comments int64 `json:"comments"`
}

// MountAdminActions 注册不属于任何 feature 的管理端接口
func MountAdminActions(admin *gin.RouterGroup, db *gorm.DB) {
	// --- GET /admin/v1/stats  各表计数 ---
	ez.RegisterAction(ez.New(admin), db, ez.Action[struct{}, statsOut]{
		Method: http.MethodGet,
		Path:   "/stats",
		Binder: ez.BindNone,
		Handler: func(_ *gin.Context, tx *gorm.DB, _ *struct{}) (statsOut, error) {
			var out statsOut
			counts := []struct {
				model any
				dst   *int64
			}{
				{&domain.User{}, &out.Users},
				{&domain.Title{}, &out.Titles},
				{&domain.Review{}, &out.Reviews},
				{&domain.Comment{}, &out.Comments},
			}
			for _, c := range counts {
				if err := tx.Model(c.model).Count(c.dst).Error; err != nil {
					return statsOut{}, ez.Internal("count failed", err)
				}
			}
			return out, nil
		},
	})
}
