// Package app assembles the process-wide dependencies shared by cmd/api,
// cmd/admin and cmd/ctl.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"review-api/internal/core/auth"
	"review-api/internal/core/cache"
	"review-api/internal/core/config"
	"review-api/internal/core/database"
	"review-api/internal/core/notify"
	"review-api/internal/repo"
	"review-api/internal/service"
	"review-api/internal/transport/http/router"
)

type App struct {
	Cfg       *config.Config
	Log       *zap.Logger
	DB        *gorm.DB
	Cache     *cache.Cache
	Notifier  notify.Notifier
	JWT       *auth.JWTer
	Users     *repo.UserRepo
	UserSvc   *service.UserService
	Issuer    *service.Issuer
	Exchanger *service.Exchanger

	closers []func() error
}

// OpenDB dials the configured database.
func OpenDB(cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	return database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Logger:             l,
	})
}

// Open wires every dependency. db may be passed in (tests); nil dials cfg.DB.
func Open(cfg *config.Config, l *zap.Logger, db *gorm.DB) (*App, error) {
	a := &App{Cfg: cfg, Log: l, DB: db}
	if a.DB == nil {
		var err error
		if a.DB, err = OpenDB(cfg, l); err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		a.closers = append(a.closers, func() error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		l.Info("database connected", zap.String("driver", cfg.DB.Driver))
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(a.DB); err != nil {
			a.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}

	if cfg.Redis.Addr != "" {
		a.Cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		a.closers = append(a.closers, a.Cache.Close)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.Cache.Ping(ctx); err != nil {
			// 缓存不可用不影响启动，读请求直接回源
			l.Warn("redis unavailable, title cache disabled", zap.Error(err))
			_ = a.Cache.Close()
			a.Cache = nil
			a.closers = a.closers[:len(a.closers)-1]
		}
	}

	n, err := notify.FromConfig(cfg.Mail, l)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Notifier = n
	if c, ok := n.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.JWT = &auth.JWTer{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, TTL: cfg.JWT.TTL()}
	a.Users = repo.NewUserRepo(a.DB)
	a.UserSvc = service.NewUserService(a.Users, cfg.Auth.ReservedUsername, l)
	if a.Cache != nil {
		a.UserSvc.WithTitleCache(a.Cache)
	}
	a.Issuer = service.NewIssuer(a.Users, a.Notifier, service.IssuerOptions{
		CodeLength:       cfg.Auth.CodeLength,
		BcryptCost:       cfg.Auth.BcryptCost,
		ReservedUsername: cfg.Auth.ReservedUsername,
		From:             cfg.Mail.From,
		Subject:          cfg.Mail.Subject,
	}, l)
	a.Exchanger = service.NewExchanger(a.Users, a.JWT, l)
	return a, nil
}

// Deps is the router view of the app.
func (a *App) Deps() router.Deps {
	return router.Deps{
		Log:      a.Log,
		DB:       a.DB,
		JWT:      a.JWT,
		Users:    a.Users,
		UserSvc:  a.UserSvc,
		Issuer:   a.Issuer,
		Exchange: a.Exchanger,
		Cache:    a.Cache,
		TitleTTL: time.Duration(a.Cfg.Redis.TitleTTLSec) * time.Second,
		Limits:   a.Cfg.Limits,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}
