package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrConfigMissing is the only fatal error class of the organizer: a
// required configuration key is absent. It aborts the run before any
// probing starts; every other failure is absorbed and logged per task.
var ErrConfigMissing = errors.New("required configuration key missing")

// ChannelNameRule maps one textual variant of a channel name onto its
// canonical form. Rules are evaluated in the order they appear in the
// configuration file, first match wins, so the table must be authored
// most-specific-first.
type ChannelNameRule struct {
	Pattern string `json:"pattern"` // Regular expression matched against the lowercased declared title
	Name    string `json:"name"`    // Canonical name emitted when the pattern matches
}

// Config holds all runtime configuration for the organizer pipeline.
// It is loaded once at startup, validated, and read-only for the rest of
// the run.
type Config struct {
	Sources            []string          // Playlist URLs or local file paths to collect channels from
	UserAgent          string            // HTTP User-Agent used for downloads
	MaxWorkers         int               // Size of the probe worker pool, minimum 1
	CheckTimeout       time.Duration     // Per-URL liveness probe timeout
	VerifyTimeout      time.Duration     // Per-URL identity verification timeout, much shorter than CheckTimeout
	ProbeRateLimit     int               // Max probe subprocess launches per second, 0 = unlimited
	Categories         []string          // Ordered category priority list for output sorting
	ChannelNameMap     []ChannelNameRule // Ordered pattern -> canonical name table
	SuspiciousKeywords []string          // Titles containing any of these trigger identity verification
	BroadcasterPrefix  string            // National broadcaster prefix keyword (lowercased)
	KeepTopK           int               // Sources kept per resolved channel, minimum 1
	OutputDir          string            // Directory the final playlist is written to
	OutputFile         string            // Final playlist filename
	SourcesDir         string            // Directory downloaded source playlists are cached in
	EPGURLs            []string          // Optional XMLTV guide URLs for channel enrichment
	DeadStreamsDB      string            // Optional sqlite path for the dead-URL registry, "" disables it
	DeadURLThreshold   int               // Consecutive failures before a URL is skipped in later runs
	MetricsPort        int               // Prometheus listener port for the run's duration, 0 = disabled
	Debug              bool              // Enable debug logging
	ObfuscateUrls      bool              // Obfuscate stream URLs in log output
}

// configFile is the JSON shape of the configuration on disk. Duration
// fields are strings (e.g. "10s") and parsed into time.Duration values.
type configFile struct {
	Sources            []string          `json:"sources"`
	UserAgent          string            `json:"userAgent"`
	MaxWorkers         int               `json:"maxWorkers"`
	CheckTimeout       string            `json:"checkTimeout"`
	VerifyTimeout      string            `json:"verifyTimeout"`
	ProbeRateLimit     int               `json:"probeRateLimit"`
	Categories         []string          `json:"categories"`
	ChannelNameMap     []ChannelNameRule `json:"channelNameMap"`
	SuspiciousKeywords []string          `json:"suspiciousKeywords"`
	BroadcasterPrefix  string            `json:"broadcasterPrefix"`
	KeepTopK           int               `json:"keepTopK"`
	OutputDir          string            `json:"outputDir"`
	OutputFile         string            `json:"outputFile"`
	SourcesDir         string            `json:"sourcesDir"`
	EPGURLs            []string          `json:"epgUrls"`
	DeadStreamsDB      string            `json:"deadStreamsDB"`
	DeadURLThreshold   int               `json:"deadUrlThreshold"`
	MetricsPort        int               `json:"metricsPort"`
	Debug              bool              `json:"debug"`
	ObfuscateUrls      bool              `json:"obfuscateUrls"`
}

// Load reads and validates the configuration file at path.
//
// Missing required keys (sources, maxWorkers, checkTimeout, categories,
// outputFile) return an error wrapping ErrConfigMissing; the caller is
// expected to abort the run before any work is dispatched.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := &Config{
		Sources:            file.Sources,
		UserAgent:          file.UserAgent,
		MaxWorkers:         file.MaxWorkers,
		ProbeRateLimit:     file.ProbeRateLimit,
		Categories:         file.Categories,
		ChannelNameMap:     file.ChannelNameMap,
		SuspiciousKeywords: file.SuspiciousKeywords,
		BroadcasterPrefix:  file.BroadcasterPrefix,
		KeepTopK:           file.KeepTopK,
		OutputDir:          file.OutputDir,
		OutputFile:         file.OutputFile,
		SourcesDir:         file.SourcesDir,
		EPGURLs:            file.EPGURLs,
		DeadStreamsDB:      file.DeadStreamsDB,
		DeadURLThreshold:   file.DeadURLThreshold,
		MetricsPort:        file.MetricsPort,
		Debug:              file.Debug,
		ObfuscateUrls:      file.ObfuscateUrls,
	}

	if file.CheckTimeout != "" {
		d, err := time.ParseDuration(file.CheckTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse checkTimeout: %w", err)
		}
		cfg.CheckTimeout = d
	}
	if file.VerifyTimeout != "" {
		d, err := time.ParseDuration(file.VerifyTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse verifyTimeout: %w", err)
		}
		cfg.VerifyTimeout = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return cfg, nil
}

// validate checks the required keys. Everything optional is filled in by
// setDefaults afterwards.
func (c *Config) validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: sources", ErrConfigMissing)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("%w: maxWorkers (must be >= 1)", ErrConfigMissing)
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("%w: checkTimeout", ErrConfigMissing)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: categories", ErrConfigMissing)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("%w: outputFile", ErrConfigMissing)
	}
	return nil
}

// setDefaults fills safe values for everything the file may omit.
func (c *Config) setDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; iptv-organizer/1.0)"
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 5 * time.Second
	}
	if c.BroadcasterPrefix == "" {
		c.BroadcasterPrefix = "cctv"
	}
	if c.KeepTopK < 1 {
		c.KeepTopK = 1
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.SourcesDir == "" {
		c.SourcesDir = "data/sources"
	}
	if c.DeadURLThreshold < 1 {
		c.DeadURLThreshold = 3
	}
}
