// Package identity authenticates the people recording supply chain events.
//
// It provides:
//   - Directory      static credential table loaded from a YAML file
//   - SessionIssuer  issues and verifies HS256 session and admin tokens
//   - RequireSession Gin middleware enforcing a user session Bearer token
//   - RequireAdmin   Gin middleware enforcing an admin Bearer token
package identity
