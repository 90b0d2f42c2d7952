// Package migrations embeds the PostgreSQL schema applied at service start.
package migrations

import "embed"

// FS holds every *.sql migration, applied in lexical order
//
//go:embed *.sql
var FS embed.FS
