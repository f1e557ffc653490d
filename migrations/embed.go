// Package migrations embeds the SQL migrations so the server can migrate
// its snapshot database without the files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
