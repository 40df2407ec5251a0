package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".pagefetch"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .pagefetch configuration file.
// Every field is optional; unset fields leave the Config untouched.
type File struct {
	URLFile        string         `yaml:"file,omitempty"`
	Dest           string         `yaml:"dest,omitempty"`
	PoolSize       *int           `yaml:"poolsize,omitempty"`
	ProxyFile      string         `yaml:"proxy,omitempty"`
	Timeout        *int           `yaml:"timeout,omitempty"` // seconds
	ConnectTimeout *time.Duration `yaml:"connectTimeout,omitempty"`
	BadURLsFile    string         `yaml:"badUrls,omitempty"`
	LogFile        string         `yaml:"logFile,omitempty"`
	UserAgent      string         `yaml:"userAgent,omitempty"`
	MaxBodySize    *int64         `yaml:"maxBodySize,omitempty"`
	MaxRedirects   *int           `yaml:"maxRedirects,omitempty"`
	ReportFile     string         `yaml:"report,omitempty"`
	MetricsAddr    string         `yaml:"metricsAddr,omitempty"`
	DBDir          string         `yaml:"dbDir,omitempty"`
	NoDB           *bool          `yaml:"noDb,omitempty"`
	NoProgress     *bool          `yaml:"noProgress,omitempty"`
}

// Apply copies every set field of f into cfg.
func (f *File) Apply(cfg *Config) {
	setString(&cfg.URLFile, f.URLFile)
	setString(&cfg.Dest, f.Dest)
	setString(&cfg.ProxyFile, f.ProxyFile)
	setString(&cfg.BadURLsFile, f.BadURLsFile)
	setString(&cfg.LogFile, f.LogFile)
	setString(&cfg.UserAgent, f.UserAgent)
	setString(&cfg.ReportFile, f.ReportFile)
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	setString(&cfg.DBDir, f.DBDir)

	if f.PoolSize != nil {
		cfg.PoolSize = *f.PoolSize
	}
	if f.Timeout != nil {
		cfg.Timeout = time.Duration(*f.Timeout) * time.Second
	}
	if f.ConnectTimeout != nil {
		cfg.ConnectTimeout = *f.ConnectTimeout
	}
	if f.MaxBodySize != nil {
		cfg.MaxBodySize = *f.MaxBodySize
	}
	if f.MaxRedirects != nil {
		cfg.MaxRedirects = *f.MaxRedirects
	}
	if f.NoDB != nil {
		cfg.SaveToDB = !*f.NoDB
	}
	if f.NoProgress != nil {
		cfg.ShowProgress = !*f.NoProgress
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadConfigFile loads options from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .pagefetch in the current directory
// 3. Look for .pagefetch in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}
