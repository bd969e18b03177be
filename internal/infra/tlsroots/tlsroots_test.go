package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writePair writes a self-signed certificate valid until notAfter.
func writePair(t *testing.T, certFile, keyFile string, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "keydesk.test"},
		DNSNames:              []string{"keydesk.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certPEM
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadRoots(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "ca.pem"), filepath.Join(dir, "ca.key")
	writePair(t, certFile, keyFile, time.Now().Add(24*time.Hour))

	if _, err := LoadRoots(""); err != nil {
		t.Errorf("LoadRoots(\"\") error = %v", err)
	}
	if _, err := LoadRoots(certFile); err != nil {
		t.Errorf("LoadRoots(ca) error = %v", err)
	}
	if _, err := LoadRoots(keyFile); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("LoadRoots(key) error = %v, want ErrNoCertsFound", err)
	}
	if _, err := LoadRoots(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("LoadRoots(missing) error = nil")
	}
}

func TestAppendPEM(t *testing.T) {
	dir := t.TempDir()
	a := writePair(t, filepath.Join(dir, "a.pem"), filepath.Join(dir, "a.key"), time.Now().Add(time.Hour))
	b := writePair(t, filepath.Join(dir, "b.pem"), filepath.Join(dir, "b.key"), time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"one", a, false},
		{"two", append(append([]byte{}, a...), b...), false},
		{"empty", nil, true},
		{"garbage", []byte("not pem"), true},
		{"bad certificate", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("x")}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AppendPEM(x509.NewCertPool(), tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("AppendPEM() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "ca.pem")
	writePair(t, certFile, filepath.Join(dir, "ca.key"), time.Now().Add(time.Hour))

	cfg, err := ClientConfig(certFile)
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs = nil")
	}
	if cfg.MinVersion == 0 {
		t.Error("MinVersion not set")
	}
}

func TestReloader(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
	first := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	writePair(t, certFile, keyFile, first)

	r, err := NewReloader(certFile, keyFile, WithLogger(quietLogger()), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewReloader() error = %v", err)
	}
	defer r.Stop()

	if !r.NotAfter().Equal(first) {
		t.Errorf("NotAfter() = %v, want %v", r.NotAfter(), first)
	}
	cert, err := r.ServerConfig().GetCertificate(nil)
	if err != nil || cert == nil || cert.Leaf == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	second := time.Now().Add(96 * time.Hour).Truncate(time.Second)
	writePair(t, certFile, keyFile, second)

	deadline := time.Now().Add(5 * time.Second)
	for !r.NotAfter().Equal(second) {
		if time.Now().After(deadline) {
			t.Fatalf("certificate not reloaded, NotAfter() = %v", r.NotAfter())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestReloader_KeepsPreviousOnBadFile(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
	notAfter := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	writePair(t, certFile, keyFile, notAfter)

	r, err := NewReloader(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(certFile, []byte("broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("Reload() of a broken file error = nil")
	}
	if !r.NotAfter().Equal(notAfter) {
		t.Errorf("NotAfter() = %v, want previous %v", r.NotAfter(), notAfter)
	}

	// Stop without Start, twice.
	if err := r.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestNewReloader_Missing(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewReloader(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")); err == nil {
		t.Error("NewReloader() with missing files error = nil")
	}
}
