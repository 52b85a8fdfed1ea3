package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"microblog/accounts"
	"microblog/admin"
	"microblog/backoffice"
	"microblog/blog"
	"microblog/cache"
	"microblog/common"
	"microblog/content"
	"microblog/database"
	"microblog/service"
	"microblog/session"
	"microblog/site"
	"microblog/social"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	l, err := common.NewLogger(!cfg.System.IsProd)
	if err != nil {
		log.Fatal("Failed to init logger: ", err)
	}
	defer l.Sync()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if err := run(command, cfg, l); err != nil {
		l.Fatal("exiting", zap.String("command", command), zap.Error(err))
	}
}

func run(command string, cfg *common.Config, l *zap.Logger) error {
	db, err := common.ConnectDb(cfg.System.DBDriver, cfg.System.DBConn, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := common.CloseDb(db); err != nil {
			l.Warn("closing database", zap.Error(err))
		}
	}()

	switch command {
	case "rebuild":
		dbFile := ""
		if cfg.System.DBDriver == "sqlite" {
			dbFile = cfg.System.DBConn
		}
		return database.Rebuild(db, dbFile, l)
	case "repair", "serve":
	default:
		return fmt.Errorf("unknown command %q (serve, rebuild, repair)", command)
	}

	if err := database.RunMigrations(db, l); err != nil {
		return err
	}

	hasher, err := accounts.NewHasher(cfg.Security.PasswordScheme)
	if err != nil {
		return err
	}
	users := accounts.NewStore(db, hasher, l)
	svc := service.New(users, social.NewGraph(db, l), content.NewStore(db, l), l)

	if command == "repair" {
		return repair(context.Background(), svc, cache.New(cfg.Cache.Dir, cfg.Cache.MaxAge), l)
	}

	err = database.SeedAdmin(context.Background(), db, users,
		cfg.Security.AdminUsername, cfg.Security.AdminPassword, l)
	if err != nil {
		return err
	}

	return serve(cfg, db, svc, users, l)
}

// repair recounts every derived counter and drops cached responses that may
// still carry the old values.
func repair(ctx context.Context, svc *service.Service, c *cache.Cache, l *zap.Logger) error {
	if err := svc.Repair(ctx); err != nil {
		return err
	}
	if err := c.ClearAll(); err != nil {
		return fmt.Errorf("clearing response cache: %w", err)
	}
	l.Info("response cache cleared after repair")
	return nil
}

func serve(cfg *common.Config, db *gorm.DB, svc *service.Service, users *accounts.Store, l *zap.Logger) error {
	var (
		store  session.Store
		purger backoffice.Purger
	)
	if cfg.System.RedisURL != "" {
		rdb, err := session.ConnectRedis(context.Background(), cfg.System.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = session.NewRedisStore(rdb, cfg.Security.SessionMaxAge)
		l.Info("sessions stored in redis")
	} else {
		gormStore := session.NewGormStore(db, cfg.Security.SessionMaxAge)
		store, purger = gormStore, gormStore
	}
	manager := session.NewManager(store, users, l)

	signer, err := session.NewSigner(cfg.Security.SessionSecret, cfg.Security.SessionMaxAge)
	if err != nil {
		return err
	}

	responseCache := cache.New(cfg.Cache.Dir, cfg.Cache.MaxAge)
	if err := responseCache.ClearOld(); err != nil {
		l.Warn("clearing old cache entries", zap.Error(err))
	}

	if cfg.System.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), common.RequestLogger(l))

	cookieStore := cookie.NewStore([]byte(cfg.Security.SessionSecret))
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Security.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.System.IsProd,
	})
	router.Use(sessions.Sessions("microblog-session", cookieStore))
	router.Use(session.Middleware(manager, signer))

	admin.NewAdminModule(svc, manager, signer, responseCache, l).RegisterRoutes(router)
	blog.NewBlogModule(svc, responseCache, l).RegisterRoutes(router)
	site.NewSiteModule(svc, l).RegisterRoutes(router)
	backoffice.NewBackofficeModule(svc, responseCache, purger, l).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.System.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		l.Info("starting server", zap.String("port", cfg.System.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		l.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		l.Info("server stopped gracefully")
		return nil
	}
}
