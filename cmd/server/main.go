package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lazynotez/backend/internal/activity"
	activityrepo "lazynotez/backend/internal/activity/repository"
	"lazynotez/backend/internal/auth/service"
	"lazynotez/backend/internal/config"
	"lazynotez/backend/internal/csrf"
	"lazynotez/backend/internal/db"
	"lazynotez/backend/internal/revocation"
	"lazynotez/backend/internal/security"
	"lazynotez/backend/internal/server"
	userrepo "lazynotez/backend/internal/user/repository"
)

const refreshPurgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer sqlDB.Close()

	rdb := db.OpenRedis(cfg.RedisURL)
	if rdb != nil {
		defer rdb.Close()
	}

	users := userrepo.NewPostgresRepository(sqlDB)
	activities := activityrepo.NewPostgresRepository(sqlDB)

	tokens := security.NewTokenCodec(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.JWTIssuer,
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
	)
	authSvc := service.NewAuthService(
		users,
		revocation.NewRedisStore(rdb),
		activity.NewLogger(activities),
		security.NewHasher(cfg.BcryptCost),
		tokens,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go purgeExpiredRefreshTokens(ctx, users)

	router := server.NewRouter(cfg, server.Deps{
		Auth: authSvc,
		CSRF: csrf.NewMemoryStore(csrf.DefaultTTL),
	})
	if err := server.Run(ctx, cfg, router); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("server stopped")
}

// purgeExpiredRefreshTokens sweeps naturally expired refresh tokens out of the
// store so dead sessions do not accumulate.
func purgeExpiredRefreshTokens(ctx context.Context, users *userrepo.PostgresRepository) {
	ticker := time.NewTicker(refreshPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := users.PurgeExpiredRefreshTokens(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("refresh token purge: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d expired refresh tokens", n)
			}
		}
	}
}
