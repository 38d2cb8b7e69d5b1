package config

import "time"

// ServerConfig holds the gateway's own listen addresses, following the
// teacher's Server block shape minus the gRPC port the gateway doesn't use.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig points at the CockroachDB/Postgres DSN backing sessions.Store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
