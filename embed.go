package visitgrid

import "embed"

// EmbeddedAssets holds the browser tracking script served at /public/tracker.js.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
