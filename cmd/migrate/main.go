// Command migrate applies or rolls back the schema in migrations/ against
// DATABASE_URL, via golang-migrate/v4.
package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/insider-one/notification-service/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of steps to apply (0 = all)")
	sourceDir := flag.String("source", "file://migrations", "migration source URL")
	flag.Parse()

	cfg := config.Load()

	m, err := migrate.New(*sourceDir, cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to initialize migrator: %v", err)
	}
	defer m.Close()

	var runErr error
	switch {
	case *steps != 0:
		n := *steps
		if *direction == "down" {
			n = -n
		}
		runErr = m.Steps(n)
	case *direction == "down":
		runErr = m.Down()
	default:
		runErr = m.Up()
	}

	if runErr != nil && !errors.Is(runErr, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", runErr)
	}

	log.Println("migrations applied successfully")
}
