// Package migrations embeds the SQL schema files into the binary.
//
// Importing it for side effects registers the files with the database
// package:
//
//	import _ "github.com/nerrad567/twc-director/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/twc-director/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}
