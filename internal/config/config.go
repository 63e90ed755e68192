// Package config loads stag config from YAML. Env overrides take precedence.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds resolved paths and settings. Paths use XDG defaults when
// not in file.
type Config struct {
	SpoolDir         string  `yaml:"spool_dir"`
	InboxDir         string  `yaml:"inbox_dir"`
	ArchiveDir       string  `yaml:"archive_dir"`
	DbPath           string  `yaml:"db_path"`
	RetentionDays    int     `yaml:"retention_days"`
	ArchiveDiskCapGB float64 `yaml:"archive_disk_cap_gb"`
	ArchiveKeyHex    string  `yaml:"archive_key"`
	Upload           Upload  `yaml:"upload"`
}

// Upload configures the cloud sink. Disabled when Bucket is empty.
type Upload struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether uploads are configured.
func (u Upload) Enabled() bool { return u.Bucket != "" }

// Load reads config from XDG_CONFIG_HOME/stag/config.yaml. Missing file
// uses defaults. Env overrides: STAG_SPOOL_DIR, STAG_INBOX_DIR,
// STAG_ARCHIVE_DIR, STAG_DB_PATH, STAG_ARCHIVE_KEY.
func Load() (*Config, error) {
	dataHome := xdgDataHome()
	configHome := xdgConfigHome()
	path := filepath.Join(configHome, "stag", "config.yaml")

	c := &Config{
		SpoolDir:         filepath.Join(dataHome, "stag", "spool"),
		InboxDir:         filepath.Join(dataHome, "stag", "inbox"),
		ArchiveDir:       filepath.Join(dataHome, "stag", "archive"),
		DbPath:           filepath.Join(dataHome, "stag", "stag.db"),
		RetentionDays:    90,
		ArchiveDiskCapGB: 2.0,
	}

	b, err := os.ReadFile(path)
	if err == nil {
		var raw Config
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, err
		}
		if raw.SpoolDir != "" {
			c.SpoolDir = resolvePath(raw.SpoolDir, dataHome)
		}
		if raw.InboxDir != "" {
			c.InboxDir = resolvePath(raw.InboxDir, dataHome)
		}
		if raw.ArchiveDir != "" {
			c.ArchiveDir = resolvePath(raw.ArchiveDir, dataHome)
		}
		if raw.DbPath != "" {
			c.DbPath = resolvePath(raw.DbPath, dataHome)
		}
		if raw.RetentionDays > 0 {
			c.RetentionDays = raw.RetentionDays
		}
		if raw.ArchiveDiskCapGB > 0 {
			c.ArchiveDiskCapGB = raw.ArchiveDiskCapGB
		}
		if raw.ArchiveKeyHex != "" {
			c.ArchiveKeyHex = raw.ArchiveKeyHex
		}
		c.Upload = raw.Upload
	}

	// Env overrides
	if v := os.Getenv("STAG_SPOOL_DIR"); v != "" {
		c.SpoolDir = v
	}
	if v := os.Getenv("STAG_INBOX_DIR"); v != "" {
		c.InboxDir = v
	}
	if v := os.Getenv("STAG_ARCHIVE_DIR"); v != "" {
		c.ArchiveDir = v
	}
	if v := os.Getenv("STAG_DB_PATH"); v != "" {
		c.DbPath = v
	}
	if v := os.Getenv("STAG_ARCHIVE_KEY"); v != "" {
		c.ArchiveKeyHex = v
	}

	return c, nil
}

// ArchiveKey decodes the at-rest encryption key. Returns nil when
// encryption is not configured.
func (c *Config) ArchiveKey() ([]byte, error) {
	if c.ArchiveKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.ArchiveKeyHex)
	if err != nil {
		return nil, fmt.Errorf("archive_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("archive_key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

// resolvePath expands $XDG_DATA_HOME, $HOME in paths from config file.
func resolvePath(p, dataHome string) string {
	return filepath.Clean(os.Expand(p, func(key string) string {
		if key == "XDG_DATA_HOME" {
			return dataHome
		}
		if key == "HOME" {
			home, _ := os.UserHomeDir()
			return home
		}
		return ""
	}))
}
