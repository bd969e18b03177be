package config

// CLIConfig is the configuration for keydesk-cli.
type CLIConfig struct {
	// ServerConfig is the keydesk-server configuration file whose store
	// settings the CLI reuses.
	ServerConfig string `yaml:"server_config"`

	// Output is the default output format: table, json, yaml.
	Output string `yaml:"output"`

	// AdminID identifies the operator in owner records and logs.
	AdminID string `yaml:"admin_id"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		ServerConfig: "/etc/keydesk/server.yaml",
		Output:       "table",
	}
}
