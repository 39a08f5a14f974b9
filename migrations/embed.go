// Package migrations embeds the SQL migration files into the binary so the
// event archive schema can be created without files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/astrobridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
