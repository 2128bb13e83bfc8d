/*-------------------------------------------------------------------------
 *
 * config.go
 *    Configuration management for NeuronFlow
 *
 * Provides YAML file loading with environment variable overrides for
 * server, database, logging, orchestration, and evaluator settings.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/config/config.go
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Database   DatabaseConfig    `yaml:"database"`
	Logging    LoggingConfig     `yaml:"logging"`
	Workflow   WorkflowConfig    `yaml:"workflow"`
	Dispatcher DispatcherConfig  `yaml:"dispatcher"`
	Evaluator  EvaluatorConfig   `yaml:"evaluator"`
	Connectors []ConnectorConfig `yaml:"connectors"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WorkflowConfig struct {
	MaxParallelSteps int `yaml:"max_parallel_steps"`
}

type DispatcherConfig struct {
	DefaultMaxRetries      int           `yaml:"default_max_retries"`
	DefaultTimeout         time.Duration `yaml:"default_timeout"`
	RetryInitialDelay      time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay          time.Duration `yaml:"retry_max_delay"`
	RetryBackoffMultiplier float64       `yaml:"retry_backoff_multiplier"`
}

type EvaluatorConfig struct {
	FlushInterval time.Duration    `yaml:"flush_interval"`
	Weights       EvaluatorWeights `yaml:"weights"`
}

/* EvaluatorWeights combine per-agent aggregates into the overall score */
type EvaluatorWeights struct {
	Completion float64 `yaml:"completion"`
	Latency    float64 `yaml:"latency"`
	Quality    float64 `yaml:"quality"`
	Errors     float64 `yaml:"errors"`
}

type ConnectorConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Model    string `yaml:"model"`
	Default  bool   `yaml:"default"`
}

/* DefaultConfig returns configuration defaults */
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "neuronflow",
			Password:        "",
			Database:        "neuronflow",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Workflow: WorkflowConfig{
			MaxParallelSteps: 4,
		},
		Dispatcher: DispatcherConfig{
			DefaultMaxRetries:      2,
			DefaultTimeout:         120 * time.Second,
			RetryInitialDelay:      500 * time.Millisecond,
			RetryMaxDelay:          10 * time.Second,
			RetryBackoffMultiplier: 2.0,
		},
		Evaluator: EvaluatorConfig{
			FlushInterval: 5 * time.Minute,
			Weights: EvaluatorWeights{
				Completion: 0.4,
				Latency:    0.1,
				Quality:    0.3,
				Errors:     0.2,
			},
		},
	}
}

/* LoadConfig loads configuration from a YAML file over the defaults */
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file read failed: path='%s', error=%w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config file parsing failed: path='%s', error=%w", path, err)
	}

	LoadFromEnv(cfg)
	return cfg, nil
}

/* LoadFromEnv applies environment variable overrides */
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NEURONFLOW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NEURONFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NEURONFLOW_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("NEURONFLOW_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("NEURONFLOW_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("NEURONFLOW_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("NEURONFLOW_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("NEURONFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEURONFLOW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NEURONFLOW_MAX_PARALLEL_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workflow.MaxParallelSteps = n
		}
	}
}

/* Validate checks configuration consistency */
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config validation failed: server_port=%d out of range", c.Server.Port)
	}
	if c.Workflow.MaxParallelSteps <= 0 {
		return fmt.Errorf("config validation failed: max_parallel_steps=%d must be positive", c.Workflow.MaxParallelSteps)
	}
	w := c.Evaluator.Weights
	if w.Completion < 0 || w.Latency < 0 || w.Quality < 0 || w.Errors < 0 {
		return fmt.Errorf("config validation failed: evaluator weights must be non-negative")
	}
	if w.Completion+w.Latency+w.Quality+w.Errors == 0 {
		return fmt.Errorf("config validation failed: evaluator weights sum to zero")
	}
	return nil
}
