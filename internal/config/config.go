// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package config loads the daemon configuration from a YAML file.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server Server `yaml:"server"`
	Tools  Tools  `yaml:"tools"`
	Batch  Batch  `yaml:"batch"`
	Log    Log    `yaml:"log"`
}

// Server holds HTTP settings.
type Server struct {
	Bind string `yaml:"bind"`
}

// Tools holds the external binary paths.
type Tools struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
}

// Batch holds conversion batch limits.
type Batch struct {
	MaxFiles     int `yaml:"max_files"`
	Workers      int `yaml:"workers"`
	GraceSeconds int `yaml:"grace_seconds"`
	LogLines     int `yaml:"log_lines"`
}

// Log holds the log sink settings.
type Log struct {
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{Bind: ":8080"},
		Tools:  Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		Batch:  Batch{MaxFiles: 10, Workers: 4, GraceSeconds: 5, LogLines: 100},
		Log:    Log{File: "logs/conversion.log"},
	}
}

// Load reads a YAML config file. A missing file yields the defaults;
// empty or non-positive values are filled from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Bind == "" {
		cfg.Server.Bind = ":8080"
	}
	if cfg.Tools.FFmpeg == "" {
		cfg.Tools.FFmpeg = "ffmpeg"
	}
	if cfg.Tools.FFprobe == "" {
		cfg.Tools.FFprobe = "ffprobe"
	}
	if cfg.Batch.MaxFiles <= 0 {
		cfg.Batch.MaxFiles = 10
	}
	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = 4
	}
	if cfg.Batch.GraceSeconds <= 0 {
		cfg.Batch.GraceSeconds = 5
	}
	if cfg.Batch.LogLines <= 0 {
		cfg.Batch.LogLines = 100
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "logs/conversion.log"
	}

	return cfg, nil
}
