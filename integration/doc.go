//go:build integration

// Package integration provides integration tests for the partialzip library.
//
// These tests require Docker and serve archives from a real nginx container
// using testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
