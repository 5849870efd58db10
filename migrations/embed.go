// Package migrations embeds the gateway's SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// All returns the embedded migrations, oldest first.
func All() ([]database.Migration, error) {
	return database.LoadMigrations(files)
}
