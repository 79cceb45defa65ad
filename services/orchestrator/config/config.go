// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the orchestrator configuration from a YAML file
// with environment variable overrides. Secrets (API keys) never live in
// the file; the LLM clients resolve them from the environment or
// container secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	Mode   string `yaml:"mode"`
}

// LLMConfig selects providers and models per role. Provider is "anthropic"
// or "openai". VisionFramework is "single_model" or "parallel_aggregate";
// the aggregate framework uses both providers' vision models.
type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	VisionFramework string `yaml:"vision_framework"`
	VisionModel     string `yaml:"vision_model"`
	BaseURL         string `yaml:"base_url"`
}

// CacheConfig configures the vision result cache.
type CacheConfig struct {
	// Backend is "badger" (persistent), "badger-memory", or "memory".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// PipelineConfig carries the pipeline limit knobs.
type PipelineConfig struct {
	MaxReviewCycles   int      `yaml:"max_review_cycles"`
	MaxRerunsPerAgent int      `yaml:"max_reruns_per_agent"`
	MaxTotalLLMCalls  int      `yaml:"max_total_llm_calls"`
	PhotoTimeout      Duration `yaml:"photo_timeout"`
	JobTimeout        Duration `yaml:"job_timeout"`
}

// ToolsConfig points at optional collaborating services.
type ToolsConfig struct {
	GotenbergURL  string `yaml:"gotenberg_url"`
	CodeLookupURL string `yaml:"code_lookup_url"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	OTelEndpoint  string `yaml:"otel_endpoint"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	LogLevel      string `yaml:"log_level"`
}

// Config is the full orchestrator configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Cache         CacheConfig         `yaml:"cache"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 12300,
			Mode: "release",
		},
		LLM: LLMConfig{
			Provider:        "anthropic",
			VisionFramework: "single_model",
		},
		Cache: CacheConfig{
			Backend: "badger",
			Dir:     "./data/viscache",
		},
		Pipeline: PipelineConfig{
			MaxReviewCycles:   2,
			MaxRerunsPerAgent: 1,
			MaxTotalLLMCalls:  12,
			PhotoTimeout:      Duration(2 * time.Minute),
			JobTimeout:        Duration(30 * time.Minute),
		},
		Observability: ObservabilityConfig{
			OTelEndpoint:  "ridgeline-otel-collector:4317",
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Load reads the config file at path (when it exists), layered over the
// defaults, then applies environment overrides. An empty path skips the
// file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus env are a complete configuration.
		case err != nil:
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides maps RIDGELINE_* environment variables over the
// loaded configuration, matching container deployment conventions.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.APIKey, "RIDGELINE_API_KEY")
	setString(&cfg.Server.Mode, "RIDGELINE_GIN_MODE")
	setInt(&cfg.Server.Port, "RIDGELINE_PORT")

	setString(&cfg.LLM.Provider, "RIDGELINE_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "RIDGELINE_LLM_MODEL")
	setString(&cfg.LLM.VisionFramework, "RIDGELINE_VISION_FRAMEWORK")
	setString(&cfg.LLM.VisionModel, "RIDGELINE_VISION_MODEL")
	setString(&cfg.LLM.BaseURL, "RIDGELINE_LLM_BASE_URL")

	setString(&cfg.Cache.Backend, "RIDGELINE_CACHE_BACKEND")
	setString(&cfg.Cache.Dir, "RIDGELINE_CACHE_DIR")

	setInt(&cfg.Pipeline.MaxReviewCycles, "RIDGELINE_MAX_REVIEW_CYCLES")
	setInt(&cfg.Pipeline.MaxRerunsPerAgent, "RIDGELINE_MAX_RERUNS_PER_AGENT")
	setInt(&cfg.Pipeline.MaxTotalLLMCalls, "RIDGELINE_MAX_TOTAL_LLM_CALLS")

	setString(&cfg.Tools.GotenbergURL, "RIDGELINE_GOTENBERG_URL")
	setString(&cfg.Tools.CodeLookupURL, "RIDGELINE_CODE_LOOKUP_URL")

	setString(&cfg.Observability.OTelEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Observability.LogLevel, "RIDGELINE_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
