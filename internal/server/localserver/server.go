package localserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Connection limits.
const (
	connTimeout    = 10 * time.Second
	maxCommandSize = 1024
)

// Server is the control socket listener.
type Server struct {
	path    string
	handler *Handler
	logger  *slog.Logger

	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a control server on socketPath. logger may be nil.
func New(socketPath string, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{path: socketPath, handler: handler, logger: logger}
}

// Listen binds the socket, replacing a stale socket file left by a
// crashed process.
func (s *Server) Listen() error {
	if fi, err := os.Lstat(s.path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if conn, err := net.DialTimeout("unix", s.path, time.Second); err == nil {
			conn.Close()
			return errors.New("localserver: socket " + s.path + " is in use")
		}
		os.Remove(s.path)
	}

	l, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		l.Close()
		return err
	}
	s.listener = l
	s.running.Store(true)
	return nil
}

// Serve accepts connections until Shutdown. It returns nil after Shutdown.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// ListenAndServe binds the socket and serves it.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting connections and waits for running commands.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	line, err := bufio.NewReader(io.LimitReader(conn, maxCommandSize)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("control connection read failed", "error", err)
		return
	}
	fields := strings.Fields(line)
	cmd, args := "", []string(nil)
	if len(fields) > 0 {
		cmd, args = fields[0], fields[1:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	s.logger.Info("control command", "command", cmd)
	if err := s.handler.Execute(ctx, conn, cmd, args); err != nil {
		io.WriteString(conn, errorPrefix+err.Error()+"\n")
	}
}
