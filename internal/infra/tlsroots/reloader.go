package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ExpiryWarning is how close to NotAfter a loaded certificate gets logged
// as expiring.
const ExpiryWarning = 14 * 24 * time.Hour

// Reloader serves a certificate pair and reloads it when either file
// changes. A failed reload keeps the previous certificate.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.RWMutex
	cert     *tls.Certificate
	notAfter time.Time

	watcher *fsnotify.Watcher
	timer   *time.Timer
	timerMu sync.Mutex
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReloaderOption {
	return func(r *Reloader) { r.logger = logger }
}

// WithDebounce sets how long file events are coalesced before a reload.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.debounce = d }
}

// NewReloader loads the pair once. Call Start to follow file changes.
func NewReloader(certFile, keyFile string, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the pair from disk now.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("tlsroots: parse leaf: %w", err)
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.notAfter = leaf.NotAfter
	r.mu.Unlock()

	left := time.Until(leaf.NotAfter)
	switch {
	case left <= 0:
		r.logger.Error("certificate expired", "cert_file", r.certFile, "not_after", leaf.NotAfter)
	case left < ExpiryWarning:
		r.logger.Warn("certificate expires soon", "cert_file", r.certFile, "not_after", leaf.NotAfter)
	default:
		r.logger.Info("certificate loaded", "cert_file", r.certFile, "not_after", leaf.NotAfter)
	}
	return nil
}

// NotAfter returns the expiry of the current certificate.
func (r *Reloader) NotAfter() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notAfter
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// ServerConfig returns a server TLS configuration backed by the reloader.
func (r *Reloader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Start watches the directories holding the pair. Watching directories
// rather than files survives editors and tools that replace files by
// rename.
func (r *Reloader) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	r.watcher = w

	r.wg.Add(1)
	go r.loop()
	return nil
}

func (r *Reloader) loop() {
	defer r.wg.Done()
	certBase, keyBase := filepath.Base(r.certFile), filepath.Base(r.keyFile)

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			r.schedule()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("certificate watcher error", "error", err)

		case <-r.done:
			return
		}
	}
}

// schedule coalesces a burst of events into one reload.
func (r *Reloader) schedule() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		if err := r.Reload(); err != nil {
			r.logger.Error("certificate reload failed, keeping previous", "error", err)
		}
	})
}

// Stop ends watching. It is safe to call more than once or without Start.
func (r *Reloader) Stop() error {
	var err error
	r.stop.Do(func() {
		close(r.done)
		r.timerMu.Lock()
		if r.timer != nil {
			r.timer.Stop()
		}
		r.timerMu.Unlock()
		if r.watcher != nil {
			err = r.watcher.Close()
		}
		r.wg.Wait()
	})
	return err
}
