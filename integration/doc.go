//go:build integration

// Package integration runs the cooker end to end over generated project
// trees: cooking, packaging, source control journaling and extraction.
//
// Run with: go test -tags=integration ./integration/...
package integration
