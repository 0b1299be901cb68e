package migrations

import "embed"

// FS contains embedded SQLite migrations for mission storage.
//
//go:embed *.sql
var FS embed.FS
