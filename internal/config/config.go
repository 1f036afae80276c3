// Package config loads dedupd's runtime configuration: a TOML file on disk,
// overridden by DEDUPD_-prefixed environment variables. A subset of
// options (fuzzy_min_score, backup_retention_days) hot-reload on file
// change without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/kestrelcrm/dedupd/internal/logging"
)

// Config mirrors every recognized runtime option.
type Config struct {
	FuzzyMinScore      int    `toml:"fuzzy_min_score"`
	FuzzyChunkSize     int    `toml:"fuzzy_chunk_size"`
	ClearExisting      bool   `toml:"clear_existing"`
	RunExact           bool   `toml:"run_exact"`
	RunFuzzy           bool   `toml:"run_fuzzy"`
	BackupRetentionDays int   `toml:"backup_retention_days"`
	BackupDir          string `toml:"backup_dir"`
	DatabasePath       string `toml:"database_path"`
	LogLevel           string `toml:"log_level"`
	LogPretty          bool   `toml:"log_pretty"`
}

// Defaults returns the documented default values.
func Defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		FuzzyMinScore:       80,
		FuzzyChunkSize:      100,
		ClearExisting:       true,
		RunExact:            true,
		RunFuzzy:            true,
		BackupRetentionDays: 30,
		BackupDir:           filepath.Join(dataDir, "backups"),
		DatabasePath:        filepath.Join(dataDir, "dedupd.db"),
		LogLevel:            "info",
		LogPretty:           false,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dedupd")
	}
	return ".dedupd"
}

// Loader owns the live viper instance and the most recently decoded Config,
// updating the latter when the watched file changes.
type Loader struct {
	v  *viper.Viper
	mu sync.RWMutex
	c  Config

	onReload func(Config)
}

// Load reads configPath (creating it with defaults via BurntSushi/toml if
// absent), layers DEDUPD_-prefixed environment overrides on top via viper,
// and returns a Loader holding the merged result.
func Load(configPath string) (*Loader, error) {
	if configPath == "" {
		configPath = filepath.Join(defaultDataDir(), "config.toml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefaultFile(configPath); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	v.SetEnvPrefix("DEDUPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("fuzzy_min_score", d.FuzzyMinScore)
	v.SetDefault("fuzzy_chunk_size", d.FuzzyChunkSize)
	v.SetDefault("clear_existing", d.ClearExisting)
	v.SetDefault("run_exact", d.RunExact)
	v.SetDefault("run_fuzzy", d.RunFuzzy)
	v.SetDefault("backup_retention_days", d.BackupRetentionDays)
	v.SetDefault("backup_dir", d.BackupDir)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	l := &Loader{v: v}
	if err := l.decode(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) decode() error {
	c := Config{
		FuzzyMinScore:       l.v.GetInt("fuzzy_min_score"),
		FuzzyChunkSize:      l.v.GetInt("fuzzy_chunk_size"),
		ClearExisting:       l.v.GetBool("clear_existing"),
		RunExact:            l.v.GetBool("run_exact"),
		RunFuzzy:            l.v.GetBool("run_fuzzy"),
		BackupRetentionDays: l.v.GetInt("backup_retention_days"),
		BackupDir:           l.v.GetString("backup_dir"),
		DatabasePath:        l.v.GetString("database_path"),
		LogLevel:            l.v.GetString("log_level"),
		LogPretty:           l.v.GetBool("log_pretty"),
	}
	l.mu.Lock()
	l.c = c
	l.mu.Unlock()
	return nil
}

// Current returns the most recently decoded configuration snapshot.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c
}

// WatchReload hot-reloads fuzzy_min_score and backup_retention_days when the
// config file changes on disk, invoking onChanged with the new snapshot.
func (l *Loader) WatchReload(onChanged func(Config)) {
	l.onReload = onChanged
	l.v.OnConfigChange(func(e fsnotify.Event) {
		log := logging.WithComponent("config")
		if err := l.decode(); err != nil {
			log.Error().Err(err).Msg("failed to reload config after change")
			return
		}
		log.Info().Str("file", e.Name).Msg("configuration reloaded")
		if l.onReload != nil {
			l.onReload(l.Current())
		}
	})
	l.v.WatchConfig()
}

func writeDefaultFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create default config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(Defaults())
}
