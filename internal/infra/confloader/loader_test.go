package confloader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Addr    string   `koanf:"addr"`
			Origins []string `koanf:"cors_allowed_origins"`
		} `koanf:"http"`
	} `koanf:"server"`
	Store struct {
		Engine    string        `koanf:"engine"`
		KeepAlive time.Duration `koanf:"keep_alive"`
	} `koanf:"store"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func defaults() *testConfig {
	cfg := &testConfig{}
	cfg.Server.HTTP.Addr = "127.0.0.1:5080"
	cfg.Store.Engine = "redis"
	cfg.Store.KeepAlive = time.Minute
	cfg.Log.Level = "info"
	return cfg
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keydesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_Load(t *testing.T) {
	path := writeFile(t, `
server:
  http:
    addr: "0.0.0.0:8443"
    cors_allowed_origins: ["https://example.org"]
store:
  keep_alive: 30s
`)

	cfg := defaults()
	if err := NewLoader(WithConfigFile(path)).Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTP.Addr != "0.0.0.0:8443" {
		t.Errorf("Addr = %q", cfg.Server.HTTP.Addr)
	}
	if len(cfg.Server.HTTP.Origins) != 1 || cfg.Server.HTTP.Origins[0] != "https://example.org" {
		t.Errorf("Origins = %v", cfg.Server.HTTP.Origins)
	}
	if cfg.Store.KeepAlive != 30*time.Second {
		t.Errorf("KeepAlive = %v, want 30s", cfg.Store.KeepAlive)
	}
	// Unset keys keep their defaults.
	if cfg.Store.Engine != "redis" || cfg.Log.Level != "info" {
		t.Errorf("defaults lost: engine=%q level=%q", cfg.Store.Engine, cfg.Log.Level)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "store:\n  engine: badger\nlog:\n  level: warn\n")
	t.Setenv("KEYDESK_STORE__ENGINE", "memory")
	t.Setenv("KEYDESK_STORE__KEEP_ALIVE", "5s")

	cfg := defaults()
	if err := NewLoader(WithConfigFile(path)).Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Engine != "memory" {
		t.Errorf("Engine = %q, want memory (env over file)", cfg.Store.Engine)
	}
	if cfg.Store.KeepAlive != 5*time.Second {
		t.Errorf("KeepAlive = %v, want 5s", cfg.Store.KeepAlive)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoader_EnvOnly(t *testing.T) {
	t.Setenv("TESTDESK_LOG__LEVEL", "debug")

	cfg := defaults()
	if err := NewLoader(WithEnvPrefix("TESTDESK_")).Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		opts    []Option
		wantErr string
	}{
		{"missing file", "", []Option{WithConfigFile("/nonexistent/keydesk.yaml")}, "load file"},
		{"bad yaml", "store: [unterminated", nil, "load file"},
		{"bad duration", "store:\n  keep_alive: soon\n", nil, "unmarshal config"},
		{"strict unknown key", "store:\n  engnie: badger\nlog:\n  colour: red\n", []Option{WithStrict()}, "log.colour, store.engnie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if tt.content != "" {
				opts = append([]Option{WithConfigFile(writeFile(t, tt.content))}, opts...)
			}
			err := NewLoader(opts...).Load(defaults())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_StrictAcceptsKnownKeys(t *testing.T) {
	path := writeFile(t, "server:\n  http:\n    addr: \":9000\"\nstore:\nlog:\n  level: error\n")

	cfg := defaults()
	if err := NewLoader(WithConfigFile(path), WithStrict()).Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTP.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Server.HTTP.Addr)
	}
}

func TestLoader_LoadTwice(t *testing.T) {
	path := writeFile(t, "log:\n  level: warn\n")
	l := NewLoader(WithConfigFile(path))

	cfg := defaults()
	if err := l.Load(cfg); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	next := defaults()
	if err := l.Load(next); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if next.Log.Level != "error" {
		t.Errorf("Level = %q after rewrite, want error", next.Log.Level)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"KEYDESK_LOG__LEVEL", "log.level"},
		{"KEYDESK_STORE__KEEP_ALIVE", "store.keep_alive"},
		{"KEYDESK_STORE__REDIS__KEY_PREFIX", "store.redis.key_prefix"},
	}
	for _, tt := range tests {
		if got := EnvKey("KEYDESK_", tt.name); got != tt.want {
			t.Errorf("EnvKey(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
