// Package config loads the process-wide configuration once at startup into
// an immutable value, per spec §6/§9: no hidden globals, no settings
// re-read mid-process. Values are sourced from environment variables (and,
// if present, a config file) via viper, the configuration library already
// pulled in by the rest of this dependency pack.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable, process-wide configuration. None of these values
// affect the correctness of the voting protocol core (C1-C6); they only
// configure the external collaborators (HTTP server, JWT auth, CORS) that
// wrap it.
type Config struct {
	// Host and Port configure the HTTP listener.
	Host string
	Port int

	// DatabaseDSN is the data source name for the relational store (C2).
	DatabaseDSN string

	// JWTSecret and JWTAlgorithm configure the external bearer-auth layer
	// that authenticates a voter before the core ever sees a request.
	JWTSecret    string
	JWTAlgorithm string

	// AccessTokenTTL and RefreshTokenTTL bound the external session layer.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// CORSOrigins lists the allowed origins for the HTTP API.
	CORSOrigins []string

	// LogLevel and LogOutput configure package log.
	LogLevel  string
	LogOutput string

	// CryptoWorkers sizes the CPU-bound crypto worker pool (spec §5): RSA-2048
	// keygen and blind-signing are dispatched here so they never stall a
	// request goroutine waiting on the connection pool.
	CryptoWorkers int
}

// Load reads configuration from the environment (prefixed VOTEAUTH_) and an
// optional config file, applying the defaults a fresh deployment needs to
// boot without any configuration at all (the database DSN defaults to a
// local SQLite file).
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("database_dsn", "file:ballotauth.db?_foreign_keys=on")
	v.SetDefault("jwt_algorithm", "HS256")
	v.SetDefault("access_token_ttl_minutes", 15)
	v.SetDefault("refresh_token_ttl_days", 7)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output", "stderr")
	v.SetDefault("crypto_workers", 4)

	v.SetEnvPrefix("voteauth")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", configFile, err)
		}
	}

	cfg := &Config{
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		DatabaseDSN:     v.GetString("database_dsn"),
		JWTSecret:       v.GetString("jwt_secret"),
		JWTAlgorithm:    v.GetString("jwt_algorithm"),
		AccessTokenTTL:  time.Duration(v.GetInt("access_token_ttl_minutes")) * time.Minute,
		RefreshTokenTTL: time.Duration(v.GetInt("refresh_token_ttl_days")) * 24 * time.Hour,
		CORSOrigins:     v.GetStringSlice("cors_origins"),
		LogLevel:        v.GetString("log_level"),
		LogOutput:       v.GetString("log_output"),
		CryptoWorkers:   v.GetInt("crypto_workers"),
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("missing required configuration: database_dsn")
	}
	if cfg.CryptoWorkers < 1 {
		cfg.CryptoWorkers = 1
	}

	return cfg, nil
}
