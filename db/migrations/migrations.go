// Package migrations embeds the SQL schema migrations applied through
// golang-migrate on startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
