// Package handler provides HTTP request handlers for KeyDesk.
//
// Endpoints:
//
//   - GET /health: liveness
//   - GET /ready: readiness, pings the store
//   - GET|POST /v1/keys/redeem?key=: redeems a key once
//
// Every JSON response uses the Response envelope. Domain error codes map to
// HTTP statuses mechanically; a key that was already redeemed yields 403.
package handler
