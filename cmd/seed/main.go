// Seeds an initial administrator account. Safe to run repeatedly: an existing
// username is left untouched.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"

	"lazynotez/backend/internal/config"
	"lazynotez/backend/internal/db"
	"lazynotez/backend/internal/security"
	userdomain "lazynotez/backend/internal/user/domain"
	userrepo "lazynotez/backend/internal/user/repository"
)

func main() {
	username := flag.String("username", "admin", "administrator username")
	password := flag.String("password", "", "administrator password (required)")
	name := flag.String("name", "Administrator", "display name")
	flag.Parse()

	if *password == "" {
		log.Fatal("-password is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(sqlDB)
	existing, err := users.GetByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("lookup %s: %v", *username, err)
	}
	if existing != nil {
		log.Printf("user %s already exists, nothing to do", *username)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(*password))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	admin := &userdomain.User{
		ID:           uuid.New().String(),
		Username:     *username,
		Name:         *name,
		PasswordHash: hash,
		Role:         userdomain.RoleAdmin,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := admin.Validate(); err != nil {
		log.Fatalf("invalid admin user: %v", err)
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("create admin: %v", err)
	}
	log.Printf("created administrator %s (%s)", admin.Username, admin.ID)
}
