package ui

import "embed"

// Dir embeds the operator console's static assets (dist/index.html,
// dist/app.js, dist/style.css): a small hand-written dashboard rather
// than a bundled frontend build, since it has no client-routed pages
// of its own to justify one.
//
//go:embed dist
var Dir embed.FS
