// Package timeouts defines shared timeout constants used across the mission
// service so deadlines stay consistent between the HTTP, MCP and generator paths.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Generation caps one mission generator call. Text generation is the slowest
// dependency on the issuance path.
const Generation = 45 * time.Second

// StoreCall caps a single directory or store round trip.
const StoreCall = 5 * time.Second
