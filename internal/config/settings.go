package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
)

// EnvPrefix prefixes every settings environment variable.
const EnvPrefix = "FOUNDRYUP"

// Settings are the user-level options read once per run from the settings
// file, environment and flags. They are passed down by value.
type Settings struct {
	GlobalCache    bool          `mapstructure:"global_cache"`
	CacheDir       string        `mapstructure:"cache_dir"`
	BinDir         string        `mapstructure:"bin_dir"`
	Project        string        `mapstructure:"project"`
	Host           string        `mapstructure:"host"`
	Timeout        time.Duration `mapstructure:"timeout"`
	HeaderTimeout  time.Duration `mapstructure:"header_timeout"`
	MaxRedirects   int           `mapstructure:"max_redirects"`
	MaxArchiveSize int64         `mapstructure:"max_archive_size"`
	Keyring        string        `mapstructure:"keyring"`

	Log logger.Config `mapstructure:",squash"`

	// workDir anchors relative paths and the local cache
	workDir string
}

// SetDefaults registers the default for every settings key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("global_cache", true)
	v.SetDefault("cache_dir", "")
	v.SetDefault("bin_dir", filepath.Join(".foundry", "bin"))
	v.SetDefault("project", "foundryup.lua")
	v.SetDefault("host", "https://github.com")
	v.SetDefault("timeout", 10*time.Minute)
	v.SetDefault("header_timeout", 30*time.Second)
	v.SetDefault("max_redirects", 5)
	v.SetDefault("max_archive_size", int64(1<<30))
	v.SetDefault("keyring", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile overrides the default settings file location.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
	}
	return v, nil
}

// LoadSettings resolves settings from v. workDir anchors relative paths.
func LoadSettings(v *viper.Viper, workDir string) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.workDir = workDir

	if s.Timeout <= 0 {
		return Settings{}, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.HeaderTimeout <= 0 {
		return Settings{}, fmt.Errorf("header_timeout must be positive, got %s", s.HeaderTimeout)
	}
	if s.MaxRedirects < 0 {
		return Settings{}, fmt.Errorf("max_redirects must not be negative, got %d", s.MaxRedirects)
	}
	if s.MaxArchiveSize <= 0 {
		return Settings{}, fmt.Errorf("max_archive_size must be positive, got %d", s.MaxArchiveSize)
	}
	return s, nil
}

// ConfigDir is the directory holding config.yaml.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foundryup")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "foundryup")
	}
	return ".foundryup"
}

// CacheRoot resolves the cache root once: an explicit cache_dir wins, then
// the user cache directory when global_cache is set, then a project-local
// directory.
func (s Settings) CacheRoot() (string, error) {
	if s.CacheDir != "" {
		return s.abs(s.CacheDir), nil
	}
	if s.GlobalCache {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("locate user cache directory: %w", err)
		}
		return filepath.Join(dir, "foundryup"), nil
	}
	return s.abs(filepath.Join(".foundry", "cache")), nil
}

// BinPath is the absolute install directory.
func (s Settings) BinPath() string {
	return s.abs(s.BinDir)
}

// ProjectPath is the absolute project file path.
func (s Settings) ProjectPath() string {
	return s.abs(s.Project)
}

// KeyringPath is the absolute keyring path, or "" when none is configured.
func (s Settings) KeyringPath() string {
	if s.Keyring == "" {
		return ""
	}
	return s.abs(s.Keyring)
}

func (s Settings) abs(path string) string {
	if filepath.IsAbs(path) || s.workDir == "" {
		return path
	}
	return filepath.Join(s.workDir, path)
}
