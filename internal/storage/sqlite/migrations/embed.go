package migrations

import "embed"

// FS contains the embedded session log migrations.
//
//go:embed *.sql
var FS embed.FS
