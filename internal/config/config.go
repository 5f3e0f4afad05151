/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package config holds the test-run configuration: defaults,
// TOML file loading, and validation/normalization.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/stream"
)

// Sharing and Perf mirror internal/stream's enums in config-file form
// (lowercase TOML-friendly names).
type StreamConfig struct {
	Sharing string `toml:"sharing"` // "exclusive" | "shared"
	Perf    string `toml:"perf"`    // "low_latency" | "none"
	Format  string `toml:"format"` // "int16" | "float32"
}

// Config is the full test-run configuration.
type Config struct {
	Output       StreamConfig `toml:"output"`
	Input        StreamConfig `toml:"input"`
	SampleRate   int          `toml:"sample_rate"`
	Channels     int          `toml:"channels"`
	RingBufferMs int          `toml:"ring_buffer_ms"`
	PreheatMs    int          `toml:"preheat_ms"`

	ReferencePath string `toml:"reference_path"`
	OutputM4APath string `toml:"output_path"`
	WorkDir       string `toml:"work_dir"`
	NATSURL       string `toml:"nats_url"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Output:       StreamConfig{Sharing: "exclusive", Perf: "low_latency", Format: "int16"},
		Input:        StreamConfig{Sharing: "exclusive", Perf: "low_latency", Format: "int16"},
		SampleRate:   48000,
		Channels:     1,
		RingBufferMs: 1000,
		PreheatMs:    3000,
		WorkDir:      ".",
	}
}

// Load reads a TOML file over the documented defaults; missing fields in
// the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize clamps invalid fields to their defaults; Load applies it after
// decoding a TOML file.
func (c *Config) normalize() {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Channels != 1 && c.Channels != 2 {
		c.Channels = 1
	}
	if c.RingBufferMs <= 0 {
		c.RingBufferMs = 1000
	}
	if c.PreheatMs < 0 {
		c.PreheatMs = 3000
	}
}

// sharing resolves the StreamConfig's textual Sharing field to stream.Sharing.
func (s StreamConfig) sharing() stream.Sharing {
	if s.Sharing == "shared" {
		return stream.Shared
	}
	return stream.Exclusive
}

// perfHint resolves the StreamConfig's textual Perf field to stream.Perf.
func (s StreamConfig) perfHint() stream.Perf {
	if s.Perf == "none" {
		return stream.NoPerfHint
	}
	return stream.LowLatency
}

// Kind resolves the StreamConfig's textual Format field to audioformat.SampleKind.
func (s StreamConfig) Kind() audioformat.SampleKind {
	if s.Format == "float32" {
		return audioformat.Float32
	}
	return audioformat.Int16
}

// OutputParams builds stream.OpenParams for the output side.
func (c Config) OutputParams() stream.OpenParams {
	return streamParams(c.Output, c.SampleRate, c.Channels)
}

// InputParams builds stream.OpenParams for the input side. sample_rate and
// channels apply identically to both streams.
func (c Config) InputParams() stream.OpenParams {
	return streamParams(c.Input, c.SampleRate, c.Channels)
}

func streamParams(sc StreamConfig, sampleRate, channels int) stream.OpenParams {
	return stream.OpenParams{
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     sc.Kind(),
		Sharing:    sc.sharing(),
		Perf:       sc.perfHint(),
	}
}
