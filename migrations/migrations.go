// Package migrations embeds the engine's schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
