// seed inserts a development user for local testing: go run ./cmd/seed [-master-password pw].
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"jobtrackr/backend/internal/config"
	"jobtrackr/backend/internal/db"
	userdomain "jobtrackr/backend/internal/user/domain"
	userrepo "jobtrackr/backend/internal/user/repository"
	"jobtrackr/backend/internal/vault"
	vaultrepo "jobtrackr/backend/internal/vault/repository"
)

const (
	devUserEmail = "dev@example.com"
	devUserName  = "Dev User"
)

func main() {
	masterPassword := flag.String("master-password", "", "Optional master password to configure for the dev user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists as %s). Skipping.", devUserEmail, existing.ID)
		return
	}

	now := time.Now().UTC()
	u := &userdomain.User{
		ID:          uuid.NewString(),
		Email:       devUserEmail,
		DisplayName: devUserName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	if *masterPassword != "" {
		svc, err := vault.NewService(vaultrepo.NewPostgresRepository(conn), cfg.PBKDF2Iterations, cfg.KDFConcurrency, nil)
		if err != nil {
			log.Fatalf("vault: %v", err)
		}
		if err := svc.Setup(ctx, u.ID, *masterPassword, vault.PolicyInitialSetup); err != nil {
			log.Fatalf("set master password: %v", err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev user: %s (%s)\n", u.Email, u.ID)
}
