package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Cassandra.Port != 9042 {
		t.Errorf("Expected port 9042, got %d", cfg.Cassandra.Port)
	}
	if cfg.Consistency.Default != "localOne" {
		t.Errorf("Expected consistency localOne, got %s", cfg.Consistency.Default)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Cassandra:   CassandraConfig{Hosts: []string{"localhost"}, Port: 9042},
			Consistency: ConsistencyConfig{Default: "localOne"},
			Datacenters: []string{"dc1"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "invalid port zero", mutate: func(c *Config) { c.Cassandra.Port = 0 }, wantErr: true},
		{name: "invalid port too high", mutate: func(c *Config) { c.Cassandra.Port = 70000 }, wantErr: true},
		{name: "no hosts", mutate: func(c *Config) { c.Cassandra.Hosts = nil }, wantErr: true},
		{name: "invalid consistency", mutate: func(c *Config) { c.Consistency.Default = "bogus" }, wantErr: true},
		{name: "no datacenters", mutate: func(c *Config) { c.Datacenters = nil }, wantErr: true},
		{
			name: "invalid regex storage group",
			mutate: func(c *Config) {
				c.Groups = []StorageGroupConfig{{Name: "g1", Domains: []string{"/(/"}}}
			},
			wantErr: true,
		},
		{
			name: "duplicate storage group name",
			mutate: func(c *Config) {
				c.Groups = []StorageGroupConfig{{Name: "g1"}, {Name: "g1"}}
			},
			wantErr: true,
		},
		{
			name: "valid storage group with regex",
			mutate: func(c *Config) {
				c.Groups = []StorageGroupConfig{{Name: "g1", Domains: []string{"en.wikipedia.org", "/^[a-z]+\\.example\\.org$/"}}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("REVTABLE_CASSANDRA_HOSTS", "host1,host2")
	os.Setenv("REVTABLE_CASSANDRA_KEYSPACE", "revtable")
	os.Setenv("REVTABLE_CONSISTENCY", "localQuorum")
	os.Setenv("REVTABLE_DATACENTERS", "dc1,dc2")
	defer func() {
		os.Unsetenv("REVTABLE_CASSANDRA_HOSTS")
		os.Unsetenv("REVTABLE_CASSANDRA_KEYSPACE")
		os.Unsetenv("REVTABLE_CONSISTENCY")
		os.Unsetenv("REVTABLE_DATACENTERS")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Cassandra.Hosts) != 2 || cfg.Cassandra.Hosts[0] != "host1" {
		t.Errorf("Expected hosts [host1 host2], got %v", cfg.Cassandra.Hosts)
	}
	if cfg.Cassandra.Keyspace != "revtable" {
		t.Errorf("Expected keyspace revtable, got %s", cfg.Cassandra.Keyspace)
	}
	if cfg.Consistency.Default != "localQuorum" {
		t.Errorf("Expected consistency localQuorum, got %s", cfg.Consistency.Default)
	}
	if len(cfg.Datacenters) != 2 {
		t.Errorf("Expected 2 datacenters, got %v", cfg.Datacenters)
	}
}
