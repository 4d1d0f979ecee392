// Package appfs embeds the database migrations and the static assets.
package appfs

import "embed"

//go:embed migrations assets
var FS embed.FS
