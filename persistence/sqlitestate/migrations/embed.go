// Package migrations embeds the state store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
