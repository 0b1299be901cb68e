// Package missions contains the Chaos Architect mission service.
//
// Each authorized student receives one generated mission. Viewing it is
// idempotent; rejecting it is terminal and bars the identity from issuance
// for good. The lifecycle package owns those rules, storage owns persistence
// contracts, and the api packages translate them to HTTP and MCP.
package missions
