package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"judged/internal/judge/sandbox/engine"
	"judged/internal/judge/service"
	"judged/internal/storage"
	"judged/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultWorkRoot       = "/tmp/judged"
	defaultSpjDir         = "/tmp/judged/spj"
	defaultMaxConcurrent  = 4
	defaultMaxCPUTimeMs   = 30_000
	defaultMaxMemoryBytes = 2 << 30
	defaultMaxOutputBytes = 16 << 20
	defaultMaxSpjCached   = 64
	defaultPackTTL        = time.Hour
	defaultPackEntries    = 64
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Token        string        `yaml:"token"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JudgeConfig holds orchestrator settings.
type JudgeConfig struct {
	WorkRoot       string `yaml:"workRoot"`
	SpjDir         string `yaml:"spjDir"`
	MaxConcurrent  int64  `yaml:"maxConcurrent"`
	MaxCPUTimeMs   int64  `yaml:"maxCPUTimeMs"`
	MaxMemoryBytes int64  `yaml:"maxMemoryBytes"`
	MaxOutputBytes int64  `yaml:"maxOutputBytes"`
	MaxSpjCached   int    `yaml:"maxSpjCached"`
}

// SandboxConfig holds sandbox engine settings.
type SandboxConfig struct {
	HelperPath       string `yaml:"helperPath"`
	CgroupRoot       string `yaml:"cgroupRoot"`
	EnableCgroup     bool   `yaml:"enableCgroup"`
	EnableSeccomp    bool   `yaml:"enableSeccomp"`
	EnableNamespaces bool   `yaml:"enableNamespaces"`
}

func (c SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		HelperPath:       c.HelperPath,
		CgroupRoot:       c.CgroupRoot,
		EnableCgroup:     c.EnableCgroup,
		EnableSeccomp:    c.EnableSeccomp,
		EnableNamespaces: c.EnableNamespaces,
	}
}

// TestCaseConfig holds test-case repository settings. Dir serves
// prepared sets from the local filesystem; MinIO, when configured,
// serves packed sets from object storage instead.
type TestCaseConfig struct {
	Dir           string              `yaml:"dir"`
	MinIO         storage.MinIOConfig `yaml:"minio"`
	CacheDir      string              `yaml:"cacheDir"`
	CacheTTL      time.Duration       `yaml:"cacheTTL"`
	CacheEntries  int                 `yaml:"cacheEntries"`
	CacheMaxBytes int64               `yaml:"cacheMaxBytes"`
}

// AppConfig holds the whole judge server config.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Logger   logger.Config  `yaml:"logger"`
	Judge    JudgeConfig    `yaml:"judge"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	TestCase TestCaseConfig `yaml:"testCase"`
}

func (c JudgeConfig) toServiceConfig() service.Config {
	return service.Config{
		WorkRoot:       c.WorkRoot,
		MaxConcurrent:  c.MaxConcurrent,
		MaxCPUTimeMs:   c.MaxCPUTimeMs,
		MaxMemoryBytes: c.MaxMemoryBytes,
		MaxOutputBytes: c.MaxOutputBytes,
	}
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Token == "" {
		return nil, fmt.Errorf("server token is required")
	}
	if cfg.Sandbox.HelperPath == "" {
		return nil, fmt.Errorf("sandbox helper path is required")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.Judge.SpjDir == "" {
		cfg.Judge.SpjDir = defaultSpjDir
	}
	if cfg.Judge.MaxConcurrent <= 0 {
		cfg.Judge.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Judge.MaxCPUTimeMs <= 0 {
		cfg.Judge.MaxCPUTimeMs = defaultMaxCPUTimeMs
	}
	if cfg.Judge.MaxMemoryBytes <= 0 {
		cfg.Judge.MaxMemoryBytes = defaultMaxMemoryBytes
	}
	if cfg.Judge.MaxOutputBytes <= 0 {
		cfg.Judge.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.Judge.MaxSpjCached <= 0 {
		cfg.Judge.MaxSpjCached = defaultMaxSpjCached
	}
	if cfg.TestCase.CacheTTL == 0 {
		cfg.TestCase.CacheTTL = defaultPackTTL
	}
	if cfg.TestCase.CacheEntries <= 0 {
		cfg.TestCase.CacheEntries = defaultPackEntries
	}
	return &cfg, nil
}
