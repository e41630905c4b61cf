// Command migrate applies the goose SQL migrations to the configured
// Postgres database.
//
// Purpose:
//   Runs migrations from migrations/sql against DATABASE_URL. Supports up,
//   down, and status. Deployments run this before starting the gateway.
//
// Debugging Notes:
//   - Requires DATABASE_URL environment variable
//   - Uses the lib/pq driver; goose manages its own version table
//   - "down" rolls back a single migration
package main

import (
	"database/sql"
	"flag"
	"log"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/eryai/authgate/internal/config"
)

func main() {
	var (
		dir     = flag.String("dir", "migrations/sql", "Directory with migration files")
		command = flag.String("command", "up", "Goose command: up, down, status")
	)
	flag.Parse()

	cfg := config.MustLoad()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	switch *command {
	case "up":
		err = goose.Up(db, *dir)
	case "down":
		err = goose.Down(db, *dir)
	case "status":
		err = goose.Status(db, *dir)
	default:
		log.Fatalf("unknown command %q", *command)
	}
	if err != nil {
		log.Fatalf("goose %s: %v", *command, err)
	}
}
