// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the engine's runtime configuration: environment
// variables (the primary source, per the deployment's twelve-factor style)
// overlaid with an optional config.json for the handful of settings too
// unwieldy for an env var (a glossary, a custom default prompt).
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/starfield-tools/esm-translate/internal/prompt"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	// "embedFS://schemas/x.json" parses with Host "schemas" and Path "/x.json".
	return schemaFiles.Open(path.Join(u.Host, u.Path))
}

func init() {
	// url.Parse lowercases the scheme, so the loader key must be lowercase.
	jsonschema.Loaders["embedfs"] = loadSchema
}

// Config is the fully resolved runtime configuration.
type Config struct {
	EnginePort int    `json:"-"`
	APIBaseURL string `json:"-"`

	LLMAPIKey  string `json:"-"`
	LLMBaseURL string `json:"-"`
	LLMModel   string `json:"-"`

	LogLevel string `json:"-"`

	BatchSize          int                    `json:"batchSize"`
	DefaultTargetLang  string                 `json:"defaultTargetLang"`
	DefaultPrompt      string                 `json:"defaultPrompt"`
	MaxRetries         int                    `json:"maxRetries"`
	RetryDelaysSeconds []float64              `json:"retryDelaysSeconds"`
	Glossary           []prompt.GlossaryEntry `json:"glossary"`
}

var defaults = Config{
	EnginePort:         5001,
	APIBaseURL:         "http://localhost:8080",
	LLMBaseURL:         "https://api.deepseek.com/v1",
	LLMModel:           "deepseek-reasoner",
	LogLevel:           "WARNING",
	BatchSize:          20,
	DefaultTargetLang:  "zh-CN",
	MaxRetries:         3,
	RetryDelaysSeconds: []float64{1, 2, 4},
}

// Load resolves the engine configuration from the environment (optionally
// populated by a .env file in the working directory) and, if present, a
// JSON overlay file validated against the engine's config schema.
func Load(overlayPath string) (*Config, error) {
	// A missing .env file is the common case outside of development and is
	// not an error; godotenv.Load returns one for that, so it is ignored.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: could not read .env file: %v", err)
	}

	cfg := defaults
	cfg.EnginePort = envInt("ENGINE_PORT", defaults.EnginePort)
	cfg.APIBaseURL = envString("API_BASE_URL", defaults.APIBaseURL)
	cfg.LLMAPIKey = envString("LLM_API_KEY", "")
	cfg.LLMBaseURL = envString("LLM_BASE_URL", defaults.LLMBaseURL)
	cfg.LLMModel = envString("LLM_MODEL", defaults.LLMModel)
	cfg.LogLevel = envString("LOG_LEVEL", defaults.LogLevel)

	if overlayPath == "" {
		overlayPath = "./config.json"
	}
	if err := applyOverlay(&cfg, overlayPath); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyOverlay(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: %s is not valid JSON: %w", path, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}

	overlay := Config{
		BatchSize:          cfg.BatchSize,
		DefaultTargetLang:  cfg.DefaultTargetLang,
		DefaultPrompt:      cfg.DefaultPrompt,
		MaxRetries:         cfg.MaxRetries,
		RetryDelaysSeconds: cfg.RetryDelaysSeconds,
		Glossary:           cfg.Glossary,
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&overlay); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}

	cfg.BatchSize = overlay.BatchSize
	cfg.DefaultTargetLang = overlay.DefaultTargetLang
	cfg.DefaultPrompt = overlay.DefaultPrompt
	cfg.MaxRetries = overlay.MaxRetries
	cfg.RetryDelaysSeconds = overlay.RetryDelaysSeconds
	cfg.Glossary = overlay.Glossary
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("config: %s=%q is not an integer, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
