package ez

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"review-api/internal/core/access"
	"review-api/internal/core/database"
	"review-api/internal/domain"
	resp "review-api/internal/transport/http/response"
)

// Hook
type CrudHooks[T any] struct {
	BeforeCreate func(c *gin.Context, m *T) error
	BeforeUpdate func(c *gin.Context, m *T) error
	// BeforeDelete runs inside the delete transaction.
	BeforeDelete func(c *gin.Context, tx *gorm.DB, m *T) error
	ScopeList    func(c *gin.Context, q *gorm.DB) *gorm.DB // 自定义筛选/排序
	AfterGet     func(c *gin.Context, m *T)
}

// CrudConfig mounts a resource addressed by a unique string key (a slug, for
// instance) instead of its numeric primary key.
type CrudConfig[T any] struct {
	DB     *gorm.DB
	Group  *gin.RouterGroup
	Path   string
	New    func() *T
	Policy access.Policy

	Hooks CrudHooks[T]

	AllowCreate bool
	AllowList   bool
	AllowGet    bool
	AllowUpdate bool
	AllowDelete bool

	KeyField     string // Go 字段名，默认 "Slug"
	KeyColumn    string // 默认 KeyField 转 snake_case
	SearchColumn string // ?search= 模糊匹配的列，空则不支持

	// 列表排序（列名），为空则按 ID DESC
	OrderBy string
}

func getStringFieldPtr(obj any, name string) (*string, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr {
		return nil, false
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	f, ok := v.Type().FieldByName(name)
	if !ok || f.PkgPath != "" {
		return nil, false
	}
	fv := v.FieldByIndex(f.Index)
	if fv.Kind() != reflect.String || !fv.CanSet() {
		return nil, false
	}
	return fv.Addr().Interface().(*string), true
}

func writeStringField(obj any, name, val string) bool {
	p, ok := getStringFieldPtr(obj, name)
	if !ok {
		return false
	}
	*p = val
	return true
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Like is database.Like, re-exported for handlers.
func Like(column, s string) (string, string) { return database.Like(column, s) }

// CRUD 注册（模型无需实现任何接口）
func Crud[T any](cfg CrudConfig[T]) {
	if !cfg.AllowCreate && !cfg.AllowGet && !cfg.AllowList && !cfg.AllowUpdate && !cfg.AllowDelete {
		cfg.AllowCreate, cfg.AllowList, cfg.AllowGet, cfg.AllowUpdate, cfg.AllowDelete = true, true, true, true, true
	}
	if cfg.KeyField == "" {
		cfg.KeyField = "Slug"
	}
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = toSnake(cfg.KeyField)
	}
	if _, ok := getStringFieldPtr(cfg.New(), cfg.KeyField); !ok {
		panic("ez.Crud: " + reflect.TypeOf(cfg.New()).Elem().Name() + " has no string field " + cfg.KeyField)
	}
	item := cfg.Path + "/:key"

	guard := func(c *gin.Context) bool {
		if cfg.Policy == 0 {
			return true
		}
		if err := Authorize(c, cfg.Policy, nil); err != nil {
			Fail(c, err)
			return false
		}
		return true
	}
	byKey := func(c *gin.Context, db *gorm.DB) (*T, error) {
		m := cfg.New()
		err := db.Where(clause.Eq{Column: clause.Column{Name: cfg.KeyColumn}, Value: c.Param("key")}).First(m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return m, err
	}
	duplicate := func(err error) error {
		if database.IsDuplicate(err) {
			return domain.Invalid(cfg.KeyColumn, "already exists")
		}
		return err
	}

	// Create
	if cfg.AllowCreate {
		cfg.Group.POST(cfg.Path, func(c *gin.Context) {
			if !guard(c) {
				return
			}
			m := cfg.New()
			if err := c.ShouldBindJSON(m); err != nil {
				Fail(c, BindError(err))
				return
			}
			if cfg.Hooks.BeforeCreate != nil {
				if err := cfg.Hooks.BeforeCreate(c, m); err != nil {
					Fail(c, err)
					return
				}
			}
			if err := cfg.DB.WithContext(c.Request.Context()).Create(m).Error; err != nil {
				Fail(c, duplicate(err))
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			resp.JSON(c, resp.OK(m))
		})
	}

	// List
	if cfg.AllowList {
		cfg.Group.GET(cfg.Path, func(c *gin.Context) {
			if !guard(c) {
				return
			}
			var pq PageQuery
			if err := c.ShouldBindQuery(&pq); err != nil {
				Fail(c, BindError(err))
				return
			}
			offset, limit := pq.Bounds()

			q := cfg.DB.WithContext(c.Request.Context()).Model(cfg.New())
			if s := strings.TrimSpace(c.Query("search")); s != "" && cfg.SearchColumn != "" {
				cond, pattern := Like(cfg.SearchColumn, s)
				q = q.Where(cond, pattern)
			}
			if cfg.Hooks.ScopeList != nil {
				q = cfg.Hooks.ScopeList(c, q)
			}

			var total int64
			if err := q.Count(&total).Error; err != nil {
				Fail(c, err)
				return
			}
			if cfg.OrderBy != "" {
				q = q.Order(cfg.OrderBy)
			} else {
				q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true})
			}
			var items []T
			if err := q.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterGet != nil {
				for i := range items {
					cfg.Hooks.AfterGet(c, &items[i])
				}
			}
			resp.JSON(c, resp.OK(NewPage(items, total, pq)))
		})
	}

	// Get
	if cfg.AllowGet {
		cfg.Group.GET(item, func(c *gin.Context) {
			if !guard(c) {
				return
			}
			m, err := byKey(c, cfg.DB.WithContext(c.Request.Context()))
			if err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			resp.JSON(c, resp.OK(m))
		})
	}

	// Update（PATCH：只覆盖请求体里出现的字段）
	if cfg.AllowUpdate {
		cfg.Group.PATCH(item, func(c *gin.Context) {
			if !guard(c) {
				return
			}
			db := cfg.DB.WithContext(c.Request.Context())
			m, err := byKey(c, db)
			if err != nil {
				Fail(c, err)
				return
			}
			if err := c.ShouldBindJSON(m); err != nil {
				Fail(c, BindError(err))
				return
			}
			if cfg.Hooks.BeforeUpdate != nil {
				if err := cfg.Hooks.BeforeUpdate(c, m); err != nil {
					Fail(c, err)
					return
				}
			}
			if err := db.Save(m).Error; err != nil {
				Fail(c, duplicate(err))
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			resp.JSON(c, resp.OK(m))
		})
	}

	// Delete
	if cfg.AllowDelete {
		cfg.Group.DELETE(item, func(c *gin.Context) {
			if !guard(c) {
				return
			}
			err := cfg.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
				m, err := byKey(c, tx)
				if err != nil {
					return err
				}
				if cfg.Hooks.BeforeDelete != nil {
					if err := cfg.Hooks.BeforeDelete(c, tx, m); err != nil {
						return err
					}
				}
				return tx.Delete(m).Error
			})
			if err != nil {
				Fail(c, err)
				return
			}
			resp.JSON(c, resp.OK(gin.H{cfg.KeyColumn: c.Param("key")}))
		})
	}
}
