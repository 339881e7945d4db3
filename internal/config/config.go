package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkarren/botherd/internal/logger"
	"github.com/mkarren/botherd/internal/seed"
	"github.com/mkarren/botherd/internal/worker"
	"github.com/spf13/viper"
)

// FileConfig represents the top-level TOML structure (botherd.toml).
type FileConfig struct {
	DataDir  string         `toml:"data_dir" mapstructure:"data_dir"`
	Backoff  time.Duration  `toml:"backoff" mapstructure:"backoff"`
	Grace    time.Duration  `toml:"grace" mapstructure:"grace"`
	Stagger  time.Duration  `toml:"stagger" mapstructure:"stagger"`
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *LogConfig     `toml:"log" mapstructure:"log"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Workers  []WorkerConfig `toml:"workers" mapstructure:"workers"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type WorkerConfig struct {
	Name            string        `toml:"name" mapstructure:"name"`
	Command         string        `toml:"command" mapstructure:"command"`
	WorkDir         string        `toml:"workdir" mapstructure:"workdir"`
	Env             []string      `toml:"env" mapstructure:"env"`
	RequiredEnv     []string      `toml:"required_env" mapstructure:"required_env"`
	Enabled         *bool         `toml:"enabled" mapstructure:"enabled"`
	RestartInterval time.Duration `toml:"restart_interval" mapstructure:"restart_interval"`
	Log             *LogConfig    `toml:"log" mapstructure:"log"`
}

// Load parses the TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	for _, wc := range fc.Workers {
		if wc.Name == "" {
			return nil, fmt.Errorf("worker requires name")
		}
		if wc.Command == "" {
			return nil, fmt.Errorf("worker %s requires command", wc.Name)
		}
	}
	return &fc, nil
}

// ResolvedDataDir applies the DATA_DIR environment override, then the config
// value, then the default "./data".
func (fc *FileConfig) ResolvedDataDir() string {
	if d := strings.TrimSpace(os.Getenv("DATA_DIR")); d != "" {
		return d
	}
	if fc.DataDir != "" {
		return fc.DataDir
	}
	return "./data"
}

// AnalyticsDBPath is the shared analytics SQLite file under the data dir.
func (fc *FileConfig) AnalyticsDBPath() string {
	return filepath.Join(fc.ResolvedDataDir(), "discord_analytics.db")
}

// ModerationDBPath is the moderation SQLite file under the data dir.
func (fc *FileConfig) ModerationDBPath() string {
	return filepath.Join(fc.ResolvedDataDir(), "moderation.db")
}

// SeedArtifacts builds the seed set for the resolved data directory.
func (fc *FileConfig) SeedArtifacts() []seed.Artifact {
	return seed.DefaultArtifacts(fc.ResolvedDataDir(), os.Getenv)
}

// Specs converts worker entries into runnable specs. Workers inherit the
// top-level log settings; a per-worker [workers.log] block overrides fields
// individually.
func (fc *FileConfig) Specs() []worker.Spec {
	specs := make([]worker.Spec, 0, len(fc.Workers))
	for _, wc := range fc.Workers {
		var logCfg logger.Config
		if fc.Log != nil {
			logCfg = toLoggerConfig(*fc.Log)
		}
		if wc.Log != nil {
			overlayLog(&logCfg, *wc.Log)
		}
		enabled := true
		if wc.Enabled != nil {
			enabled = *wc.Enabled
		}
		specs = append(specs, worker.Spec{
			Name:            wc.Name,
			Command:         wc.Command,
			WorkDir:         wc.WorkDir,
			Env:             wc.Env,
			RequiredEnv:     wc.RequiredEnv,
			Enabled:         enabled,
			RestartInterval: wc.RestartInterval,
			Log:             logCfg,
		})
	}
	return specs
}

// GlobalEnv merges environment for all workers. Precedence: OS env (when
// use_os_env) as base, then env_files in order, then the top-level env list.
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

func toLoggerConfig(lc LogConfig) logger.Config {
	return logger.Config{
		Dir:        lc.Dir,
		StdoutPath: lc.Stdout,
		StderrPath: lc.Stderr,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

func overlayLog(dst *logger.Config, lc LogConfig) {
	if lc.Dir != "" {
		dst.Dir = lc.Dir
	}
	if lc.Stdout != "" {
		dst.StdoutPath = lc.Stdout
	}
	if lc.Stderr != "" {
		dst.StderrPath = lc.Stderr
	}
	if lc.MaxSizeMB != 0 {
		dst.MaxSizeMB = lc.MaxSizeMB
	}
	if lc.MaxBackups != 0 {
		dst.MaxBackups = lc.MaxBackups
	}
	if lc.MaxAgeDays != 0 {
		dst.MaxAgeDays = lc.MaxAgeDays
	}
	if lc.Compress {
		dst.Compress = true
	}
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines. Lines starting
// with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
