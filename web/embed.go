// Package web provides embedded static assets for the Picturebook server.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var staticFS embed.FS

// PlaceholderIllustration is the asset name served in place of a page image
// that could not be generated.
const PlaceholderIllustration = "placeholder-illustration.png"

// StaticFS returns the embedded assets as a filesystem.
// The returned FS has "static" as the root, so files are accessed directly
// (e.g., "placeholder-illustration.png" not "static/placeholder-illustration.png").
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
