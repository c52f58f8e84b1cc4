// Package server assembles the gin router and owns the HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lazynotez/backend/internal/auth/handler"
	"lazynotez/backend/internal/auth/service"
	"lazynotez/backend/internal/config"
	"lazynotez/backend/internal/csrf"
	"lazynotez/backend/internal/server/middleware"
)

const (
	authRateLimit  = 5
	authRateWindow = 15 * time.Minute
)

// Deps carries everything the router needs wired in.
type Deps struct {
	Auth *service.AuthService
	CSRF csrf.Store
}

// NewRouter builds the full route table.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOriginsList()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "lazynotez-backend"})
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})

	api := r.Group("/api")

	api.GET("/csrf-token", func(c *gin.Context) {
		token, err := deps.CSRF.Issue()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"csrfToken": token})
	})

	authHandler := handler.NewAuthHandler(deps.Auth, cfg.CookieSecure, cfg.Production(), cfg.RefreshTTL())

	limiter := middleware.NewRateLimiter(authRateLimit, authRateWindow)
	limitAuth := limiter.Middleware(cfg.Env != "development")
	requireCSRF := middleware.RequireCSRF(deps.CSRF)

	auth := api.Group("/auth")
	auth.POST("/register", limitAuth, requireCSRF, authHandler.Register)
	auth.POST("/login", limitAuth, requireCSRF, authHandler.Login)
	auth.POST("/refresh", requireCSRF, authHandler.Refresh)
	auth.POST("/logout", requireCSRF, authHandler.Logout)
	auth.GET("/me", middleware.RequireAuth(deps.Auth), authHandler.Me)

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down with a grace period.
func Run(ctx context.Context, cfg *config.Config, router *gin.Engine) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
