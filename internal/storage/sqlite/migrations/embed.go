package migrations

import "embed"

// FS contains the embedded memory profile schema.
//
//go:embed *.sql
var FS embed.FS
