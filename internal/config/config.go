/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/kentakayama/suit-storage/internal/domain/model"
)

const (
	DefaultNVVCount               = 8
	DefaultReports                = 2
	DefaultReportCapacity         = 1024
	DefaultEnvelopeSlots          = 5
	DefaultEnvelopeBankSize       = 2048
	DefaultUpdateCandidateRegions = 4
	DefaultMemPtrLimit            = 64 * 1024
	DefaultChunkSize              = 4096
	DefaultMaxComponents          = 16
	DefaultDigestCacheSize        = 8
	DefaultFetchTimeout           = 60 * time.Second
	DefaultUserAgent              = "suit-storage/fetch"
	DefaultAddr                   = ":8080"
	DefaultNVMSize                = 1 << 20
	DefaultEraseBlockSize         = 4096
	DefaultWriteBlockSize         = 4
)

// NVMConfig selects and shapes the device backing every partition.
type NVMConfig struct {
	// Backend is one of "memory", "file" or "sqlite".
	Backend        string `yaml:"backend"`
	Path           string `yaml:"path"`
	Name           string `yaml:"name"`
	Size           uint64 `yaml:"size"`
	EraseBlockSize uint64 `yaml:"erase-block-size"`
	WriteBlockSize uint64 `yaml:"write-block-size"`
}

// StorageConfig captures the layout of the SUIT storage partition.
type StorageConfig struct {
	// Partition holds every storage area. A zero size places a partition of
	// the required size at the top of the device.
	Partition model.Region `yaml:"partition"`
	// DFUArea bounds the regions accepted as update candidate. A zero size
	// accepts the whole device.
	DFUArea                model.Region `yaml:"dfu-area"`
	NVVCount               int          `yaml:"nvv-count"`
	Reports                int          `yaml:"reports"`
	ReportCapacity         uint64       `yaml:"report-capacity"`
	EnvelopeSlots          int          `yaml:"envelope-slots"`
	EnvelopeBankSize       uint64       `yaml:"envelope-bank-size"`
	UpdateCandidateRegions int          `yaml:"update-candidate-regions"`
	Logger                 *log.Logger  `yaml:"-"`
}

func (c StorageConfig) WithDefaults() StorageConfig {
	if c.NVVCount == 0 {
		c.NVVCount = DefaultNVVCount
	}
	if c.Reports == 0 {
		c.Reports = DefaultReports
	}
	if c.ReportCapacity == 0 {
		c.ReportCapacity = DefaultReportCapacity
	}
	if c.EnvelopeSlots == 0 {
		c.EnvelopeSlots = DefaultEnvelopeSlots
	}
	if c.EnvelopeBankSize == 0 {
		c.EnvelopeBankSize = DefaultEnvelopeBankSize
	}
	if c.UpdateCandidateRegions == 0 {
		c.UpdateCandidateRegions = DefaultUpdateCandidateRegions
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// CachePoolConfig declares one DFU cache pool partition.
type CachePoolConfig struct {
	ID     uint64       `yaml:"id"`
	Region model.Region `yaml:"region"`
}

// PlatformConfig captures the tunables of the sink selector and the fetch
// pipeline.
type PlatformConfig struct {
	MemPtrLimit uint64 `yaml:"memptr-limit"`
	ChunkSize   int    `yaml:"chunk-size"`
	// ReservedRegions may never be the destination of a MEM component.
	ReservedRegions []model.Region    `yaml:"reserved-regions"`
	CachePools      []CachePoolConfig `yaml:"cache-pools"`
	MaxComponents   int               `yaml:"max-components"`
	DigestCacheSize int               `yaml:"digest-cache-size"`
	// DisableDigestCache skips the digest cache invalidation on fetch.
	DisableDigestCache bool        `yaml:"disable-digest-cache"`
	Logger             *log.Logger `yaml:"-"`
}

func (c PlatformConfig) WithDefaults() PlatformConfig {
	if c.MemPtrLimit == 0 {
		c.MemPtrLimit = DefaultMemPtrLimit
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxComponents == 0 {
		c.MaxComponents = DefaultMaxComponents
	}
	if c.DigestCacheSize == 0 {
		c.DigestCacheSize = DefaultDigestCacheSize
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// FetchConfig captures the tunables of the HTTP payload source.
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	InsecureTLS bool          `yaml:"insecure-tls"`
	UserAgent   string        `yaml:"user-agent"`
	Logger      *log.Logger   `yaml:"-"`
}

func (c FetchConfig) WithDefaults() FetchConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultFetchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// ServerConfig captures the tunables required to start the management server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// TrustedKeys are paths of CBOR encoded COSE_Key files. When empty,
	// envelopes are installed without signature verification.
	TrustedKeys []string    `yaml:"trusted-keys"`
	Logger      *log.Logger `yaml:"-"`
}

func (c ServerConfig) WithDefaults() ServerConfig {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Config is the content of a configuration file.
type Config struct {
	NVM      NVMConfig      `yaml:"nvm"`
	Storage  StorageConfig  `yaml:"storage"`
	Platform PlatformConfig `yaml:"platform"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Server   ServerConfig   `yaml:"server"`
}

// WithDefaults fills every unset tunable and shares logger between the
// sections that have none.
func (c Config) WithDefaults(logger *log.Logger) Config {
	if logger == nil {
		logger = log.Default()
	}
	if c.NVM.Backend == "" {
		c.NVM.Backend = "memory"
	}
	if c.NVM.Name == "" {
		c.NVM.Name = "flash0"
	}
	if c.NVM.Size == 0 {
		c.NVM.Size = DefaultNVMSize
	}
	if c.NVM.EraseBlockSize == 0 {
		c.NVM.EraseBlockSize = DefaultEraseBlockSize
	}
	if c.NVM.WriteBlockSize == 0 {
		c.NVM.WriteBlockSize = DefaultWriteBlockSize
	}
	if c.Storage.Logger == nil {
		c.Storage.Logger = logger
	}
	if c.Platform.Logger == nil {
		c.Platform.Logger = logger
	}
	if c.Fetch.Logger == nil {
		c.Fetch.Logger = logger
	}
	if c.Server.Logger == nil {
		c.Server.Logger = logger
	}
	c.Storage = c.Storage.WithDefaults()
	c.Platform = c.Platform.WithDefaults()
	c.Fetch = c.Fetch.WithDefaults()
	c.Server = c.Server.WithDefaults()
	return c
}

// Load reads a YAML configuration file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open configuration file: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f, yaml.Strict())
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration file: %w", err)
	}
	return &cfg, nil
}
