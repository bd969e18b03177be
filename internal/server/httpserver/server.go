// Package httpserver provides the HTTP/HTTPS server for KeyDesk.
package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server timeouts.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		handler: handler,
	}
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// ListenAndServeTLS starts the HTTPS server. It returns nil after Shutdown.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	return ignoreClosed(s.httpServer.ListenAndServeTLS(certFile, keyFile))
}

// ListenAndServeTLSConfig starts the HTTPS server with certificates taken
// from cfg, e.g. a reloading GetCertificate.
func (s *Server) ListenAndServeTLSConfig(cfg *tls.Config) error {
	s.httpServer.TLSConfig = cfg
	return ignoreClosed(s.httpServer.ListenAndServeTLS("", ""))
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(l))
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
