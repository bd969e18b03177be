// Package localserver provides the local control socket of keydesk-server.
//
// The server listens on a Unix domain socket. A client writes one command
// line and reads the reply until the server closes the connection:
//
//	status             build, uptime, store and pool summary
//	ping               liveness check
//	log-level [LEVEL]  show or change the log level
//	shutdown           begin a graceful shutdown
//
// A failed command replies with a single "error: " line. Access is
// controlled by the socket file's permissions (0600), not by credentials.
package localserver
