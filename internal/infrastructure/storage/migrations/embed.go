// Package migrations embeds the SQL migrations for the state store.
// Migrations only ever add tables or nullable/defaulted columns.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
