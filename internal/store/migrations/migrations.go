// Package migrations embeds the SQL migration files applied by
// store.RunMigrations via goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
