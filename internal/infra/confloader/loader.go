package confloader

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix of keydesk settings.
const DefaultEnvPrefix = "KEYDESK_"

// envLevelSeparator separates nesting levels in environment variable names.
// A single underscore stays part of the key name.
const envLevelSeparator = "__"

// Loader reads a YAML file and the environment into a koanf-tagged struct.
// Environment values override file values; fields set in neither keep the
// value the target already holds, so callers pass a populated default.
type Loader struct {
	envPrefix string
	filePath  string
	strict    bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file path. No file means environment only.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithStrict rejects file keys that match no field of the target, so a
// misspelled setting fails the load instead of being ignored.
func WithStrict() Option {
	return func(l *Loader) {
		l.strict = true
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fills target, a pointer to a struct, from the file and then the
// environment. Every call starts from a fresh koanf instance, so Load can
// be called again after the file changed.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")

	if l.filePath != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load file %s: %w", l.filePath, err)
		}
		if l.strict {
			if err := checkKeys(fk.Keys(), target); err != nil {
				return fmt.Errorf("%s: %w", l.filePath, err)
			}
		}
		if err := k.Merge(fk); err != nil {
			return fmt.Errorf("merge file: %w", err)
		}
	}

	provider := env.Provider(l.envPrefix, ".", func(s string) string {
		return EnvKey(l.envPrefix, s)
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// EnvKey maps an environment variable name to a configuration key, so
// KEYDESK_STORE__KEEP_ALIVE sets store.keep_alive.
func EnvKey(prefix, name string) string {
	name = strings.TrimPrefix(name, prefix)
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, envLevelSeparator, ".")
}

// checkKeys reports file keys that name no field of target.
func checkKeys(keys []string, target any) error {
	known := map[string]bool{}
	collectPaths(reflect.TypeOf(target), "", known)

	var unknown []string
	for _, key := range keys {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown configuration keys: %s", strings.Join(unknown, ", "))
}

// collectPaths records the dotted koanf path of every field of t, walking
// into nested structs. A section left empty in YAML shows up as a key of
// its own, so struct paths count as known too.
func collectPaths(t reflect.Type, prefix string, out map[string]bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if prefix != "" {
		out[prefix] = true
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		collectPaths(f.Type, name, out)
	}
}
