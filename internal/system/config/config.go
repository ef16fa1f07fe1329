/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package config provides structures and functions for loading and managing server configurations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	yaml "gopkg.in/yaml.v3"

	"github.com/asgardeo/conduit/internal/system/constants"
	"github.com/asgardeo/conduit/internal/system/log"
)

// ServerConfig holds the server configuration details.
type ServerConfig struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	HTTPOnly bool   `yaml:"http_only"`
}

// SecurityConfig holds the outbound security policy and the server TLS material.
type SecurityConfig struct {
	CertFile       string   `yaml:"cert_file"`
	KeyFile        string   `yaml:"key_file"`
	AllowedDomains []string `yaml:"allowed_domains"`
	EnforceHTTPS   bool     `yaml:"enforce_https"`
}

// RateLimitConfig holds the per-tenant outbound request rate limit.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// HTTPConfig holds the outbound HTTP client configuration.
type HTTPConfig struct {
	TimeoutSeconds   int             `yaml:"timeout_seconds" validate:"min=1,max=300"`
	MaxRedirects     int             `yaml:"max_redirects" validate:"min=0,max=20"`
	MaxResponseBytes int64           `yaml:"max_response_bytes" validate:"min=1"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

// SQLConfig holds the SQL validation and execution limits.
type SQLConfig struct {
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds" validate:"min=1,max=3600"`
	MaxStatementLength    int `yaml:"max_statement_length" validate:"min=1"`
}

// SandboxConfig holds the script sandbox resource ceilings.
type SandboxConfig struct {
	TimeoutMs        int      `yaml:"timeout_ms" validate:"min=1"`
	MaxTimeoutMs     int      `yaml:"max_timeout_ms" validate:"min=1"`
	MemoryLimitMB    int      `yaml:"memory_limit_mb" validate:"min=1"`
	MaxScriptBytes   int      `yaml:"max_script_bytes" validate:"min=1"`
	MaxConcurrent    int      `yaml:"max_concurrent" validate:"min=1"`
	EnvAllowPrefixes []string `yaml:"env_allow_prefixes"`
}

// IngestionConfig holds the tabular ingestion limits.
type IngestionConfig struct {
	MaxInlineRows int   `yaml:"max_inline_rows" validate:"min=0"`
	PreviewRows   int   `yaml:"preview_rows" validate:"min=1"`
	MaxBytes      int64 `yaml:"max_bytes" validate:"min=1"`
}

// StorageConfig holds the artifact store configuration.
type StorageConfig struct {
	ArtifactPath string `yaml:"artifact_path"`
	InMemory     bool   `yaml:"in_memory"`
}

// LLMConfig holds the LLM provider configuration.
type LLMConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// TracingConfig holds the OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Config holds the complete configuration details of the server.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Environment string          `yaml:"environment" validate:"oneof=production development"`
	Security    SecurityConfig  `yaml:"security"`
	HTTP        HTTPConfig      `yaml:"http"`
	SQL         SQLConfig       `yaml:"sql"`
	Sandbox     SandboxConfig   `yaml:"sandbox"`
	Ingestion   IngestionConfig `yaml:"ingestion"`
	Storage     StorageConfig   `yaml:"storage"`
	LLM         LLMConfig       `yaml:"llm"`
	Tracing     TracingConfig   `yaml:"tracing"`
}

// IsProduction reports whether the configuration describes a production deployment.
func (c *Config) IsProduction() bool {
	return c.Environment != constants.EnvironmentDevelopment
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Hostname: "localhost",
			Port:     8090,
		},
		Environment: constants.EnvironmentProduction,
		HTTP: HTTPConfig{
			TimeoutSeconds:   30,
			MaxRedirects:     5,
			MaxResponseBytes: 10 << 20,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				Burst:             40,
			},
		},
		SQL: SQLConfig{
			DefaultTimeoutSeconds: 30,
			MaxStatementLength:    10000,
		},
		Sandbox: SandboxConfig{
			TimeoutMs:      5000,
			MaxTimeoutMs:   30000,
			MemoryLimitMB:  128,
			MaxScriptBytes: 64 << 10,
			MaxConcurrent:  8,
		},
		Ingestion: IngestionConfig{
			MaxInlineRows: 1000,
			PreviewRows:   10,
			MaxBytes:      20 << 20,
		},
		LLM: LLMConfig{
			DefaultModel: "gpt-4o-mini",
		},
		Tracing: TracingConfig{
			ServiceName: "conduit",
			SampleRatio: 1,
		},
	}
}

// LoadConfig loads the configurations from the specified YAML file, applies environment overrides
// and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	path = filepath.Clean(path)

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if ferr := file.Close(); ferr != nil {
			log.GetLogger().Error("Failed to close config file", log.Error(ferr))
		}
	}()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewConfig builds a validated configuration from defaults and environment overrides only.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize applies environment overrides and defaults, then validates the configuration.
func finalize(cfg *Config) error {
	applyEnvironmentOverrides(cfg)

	if err := mergo.Merge(cfg, DefaultConfig()); err != nil {
		return fmt.Errorf("failed to apply configuration defaults: %w", err)
	}

	if cfg.Sandbox.TimeoutMs > cfg.Sandbox.MaxTimeoutMs {
		return errors.New("configuration validation failed:\n  - sandbox.timeout_ms must not exceed sandbox.max_timeout_ms")
	}

	return NewValidator().Validate(cfg)
}

// applyEnvironmentOverrides overrides configuration values from environment variables.
func applyEnvironmentOverrides(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv(constants.EnvironmentVariable)); env != "" {
		cfg.Environment = strings.ToLower(env)
	}

	if domains := os.Getenv(constants.AllowedDomainsEnvironmentVariable); domains != "" {
		cfg.Security.AllowedDomains = parseDomainList(domains)
	}

	if apiKey := os.Getenv(constants.OpenAIAPIKeyEnvironmentVariable); apiKey != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKey
	}
}

// parseDomainList splits a comma-separated domain list, dropping empty entries.
func parseDomainList(value string) []string {
	domains := []string{}
	for _, domain := range strings.Split(value, ",") {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	return domains
}
