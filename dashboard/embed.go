// Package dashboard provides the embedded web UI assets for pulsewatch.
//
// The page subscribes to /api/v1/events and renders one card per service
// with its spec and most recent status. Assets are compiled into the binary
// so the server ships as a single file.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
