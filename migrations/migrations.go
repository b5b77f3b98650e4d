// Package migrations embeds the PostgreSQL schema for the conversation store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
