// Command seed bootstraps a demo user and sample leads for development.
//
// Purpose:
//   This utility creates a demo user with a hashed password and a handful of
//   sample leads, enabling local development without manual database setup.
//   It supports custom user details via flags and prints the credentials.
//
// Dependencies:
//   - internal/config: Configuration (requires DATABASE_URL)
//   - internal/storage/postgres: Data access layer
//   - internal/security: Password hashing (Argon2id)
//
// Debugging Notes:
//   - Requires DATABASE_URL environment variable
//   - Uses 30s timeout for database operations
//   - Generated passwords are printed to stdout (development only)
//   - Re-running against an existing user is a no-op unless -force
//
// Error Handling:
//   - Missing DATABASE_URL exits with fatal error
//   - Seed failures log fatal and exit
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/eryai/authgate/internal/config"
	"github.com/eryai/authgate/internal/security"
	"github.com/eryai/authgate/internal/storage/postgres"
)

func main() {
	var (
		userEmail    = flag.String("user-email", "demo@example.com", "Demo user email")
		userPassword = flag.String("user-password", "", "Demo user password (default: generate random)")
		userName     = flag.String("user-name", "Demo User", "Demo user display name")
		force        = flag.Bool("force", false, "Reset the password if the user already exists")
		withLeads    = flag.Bool("leads", true, "Seed sample leads")
	)
	flag.Parse()

	cfg := config.MustLoad()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("create store: %v", err)
	}
	defer store.Close()

	password := *userPassword
	if password == "" {
		password, err = randomPassword()
		if err != nil {
			log.Fatalf("generate password: %v", err)
		}
	}

	if err := seedUser(ctx, store, *userEmail, *userName, password, *force); err != nil {
		log.Fatalf("seed user: %v", err)
	}

	if *withLeads {
		if err := seedLeads(ctx, store); err != nil {
			log.Fatalf("seed leads: %v", err)
		}
	}

	fmt.Printf("seeded user %s\n", *userEmail)
	fmt.Printf("password: %s\n", password)
}

func seedUser(ctx context.Context, store *postgres.Store, email, displayName, password string, force bool) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = store.CreateUser(ctx, postgres.CreateUserParams{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, postgres.ErrDuplicate) {
		return err
	}
	if !force {
		return fmt.Errorf("user %s already exists (use -force to reset password)", email)
	}

	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return store.UpdateUserPassword(ctx, user.ID, hash)
}

func seedLeads(ctx context.Context, store *postgres.Store) error {
	samples := []postgres.CreateLeadParams{
		{Name: "Ada Chen", Email: "ada.chen@northwind.io", Company: "Northwind", Status: "new"},
		{Name: "Luis Romero", Email: "l.romero@contoso.com", Company: "Contoso", Status: "contacted"},
		{Name: "Priya Nair", Email: "priya@fabrikam.dev", Company: "Fabrikam", Status: "qualified"},
		{Name: "Tom Okafor", Email: "tom.okafor@tailspin.co", Company: "Tailspin", Status: "new"},
	}
	for _, params := range samples {
		if _, err := store.CreateLead(ctx, params); err != nil {
			if errors.Is(err, postgres.ErrDuplicate) {
				continue
			}
			return err
		}
	}
	return nil
}

func randomPassword() (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
