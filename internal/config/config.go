// Package config provides configuration management for the storage engine.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration surface consumed at startup.
type Config struct {
	Cassandra   CassandraConfig       `yaml:"cassandra"`
	Consistency ConsistencyConfig     `yaml:"consistency"`
	Datacenters []string              `yaml:"datacenters"`
	Groups      []StorageGroupConfig  `yaml:"storage_groups"`
	Logging     LoggingConfig         `yaml:"logging"`
}

// CassandraConfig is the driver connection surface.
type CassandraConfig struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// ConsistencyConfig carries the default consistency level new requests
// inherit when a query does not override it.
type ConsistencyConfig struct {
	Default string `yaml:"default"` // all, localOne, localQuorum
}

// StorageGroupConfig maps a set of domain patterns (literal strings or
// /regex/-delimited patterns) onto a single replication/keyspace-naming
// group name.
type StorageGroupConfig struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
}

// LoggingConfig configures the slog handler used process-wide.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Cassandra: CassandraConfig{
			Port: 9042,
		},
		Consistency: ConsistencyConfig{
			Default: "localOne",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REVTABLE_CASSANDRA_HOSTS"); v != "" {
		c.Cassandra.Hosts = strings.Split(v, ",")
	}
	if v := os.Getenv("REVTABLE_CASSANDRA_KEYSPACE"); v != "" {
		c.Cassandra.Keyspace = v
	}
	if v := os.Getenv("REVTABLE_CASSANDRA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Cassandra.Port = port
		}
	}
	if v := os.Getenv("REVTABLE_CASSANDRA_USERNAME"); v != "" {
		c.Cassandra.Username = v
	}
	if v := os.Getenv("REVTABLE_CASSANDRA_PASSWORD"); v != "" {
		c.Cassandra.Password = v
	}
	if v := os.Getenv("REVTABLE_CONSISTENCY"); v != "" {
		c.Consistency.Default = v
	}
	if v := os.Getenv("REVTABLE_DATACENTERS"); v != "" {
		c.Datacenters = strings.Split(v, ",")
	}
	if v := os.Getenv("REVTABLE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration, including compiling every
// storage-group domain pattern so a malformed regex fails fast at startup
// rather than on first lookup.
func (c *Config) Validate() error {
	if c.Cassandra.Port < 1 || c.Cassandra.Port > 65535 {
		return fmt.Errorf("invalid cassandra port: %d", c.Cassandra.Port)
	}
	if len(c.Cassandra.Hosts) == 0 {
		return fmt.Errorf("at least one cassandra host is required")
	}

	validConsistency := map[string]bool{"all": true, "localOne": true, "localQuorum": true}
	if !validConsistency[c.Consistency.Default] {
		return fmt.Errorf("invalid default consistency: %s", c.Consistency.Default)
	}

	if len(c.Datacenters) == 0 {
		return fmt.Errorf("at least one datacenter is required")
	}

	seen := map[string]bool{}
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("storage group with empty name")
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate storage group name: %s", g.Name)
		}
		seen[g.Name] = true
		for _, d := range g.Domains {
			if strings.HasPrefix(d, "/") && strings.HasSuffix(d, "/") && len(d) > 1 {
				if _, err := regexp.Compile(d[1 : len(d)-1]); err != nil {
					return fmt.Errorf("storage group %q: invalid domain pattern %q: %w", g.Name, d, err)
				}
			}
		}
	}

	return nil
}
