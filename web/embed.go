// Package web embeds the single-page forecast UI.
package web

import "embed"

// TemplatesFS holds the page templates rendered by the HTTP server.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the script and stylesheet served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
