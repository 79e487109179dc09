// Package migrations embeds the goose SQL migrations for the audit archive.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
