// Package integration provides integration tests that run the key-value store
// backends and repo selection against real Redis, PostgreSQL and MongoDB
// instances. These tests use real databases via testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
