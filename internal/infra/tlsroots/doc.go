// Package tlsroots loads TLS material for KeyDesk.
//
//   - roots.go: system roots plus an optional private CA, for calls to the
//     frontend bridge
//   - reloader.go: the server certificate, reloaded when its files change
//
// A certificate close to expiry is logged on every load.
package tlsroots
