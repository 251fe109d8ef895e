package migrations

import "embed"

// Files holds the dispatch schema migrations, ordered by version prefix.
//
//go:embed *.sql
var Files embed.FS
