package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	configDir  = ".config/tag2sha"
	tokenFile  = "token"
	configFile = "config.toml"

	configDirEnvKey = "TAG2SHA_CONFIG_DIR"
)

// Config holds the settings read from config.toml. Zero values mean "use
// the built-in default".
type Config struct {
	APIURL        string `toml:"api_url"`
	Timeout       string `toml:"timeout"`
	Concurrency   int    `toml:"concurrency"`
	LogLevel      string `toml:"log_level"`
	Remote        string `toml:"remote"`
	CommitMessage string `toml:"commit_message"`
	Token         string `toml:"token"`
}

// TimeoutDuration parses Timeout; it returns zero when unset.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// Dir returns the configuration directory, honoring TAG2SHA_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv(configDirEnvKey); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDir), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads config.toml. A missing file yields an empty Config.
func Load() (Config, error) {
	var cfg Config

	path, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	return cfg, nil
}

func GetTokenPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, tokenFile), nil
}

func SaveToken(token string) error {
	path, err := GetTokenPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(strings.TrimSpace(token)), 0o600)
}

func LoadToken() (string, error) {
	path, err := GetTokenPath()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// GetToken picks the first token from: the flag, GITHUB_TOKEN,
// TAG2SHA_TOKEN, the saved token file, config.toml.
func GetToken(providedToken string, cfg Config) string {
	if providedToken != "" {
		return providedToken
	}

	if envToken := os.Getenv("GITHUB_TOKEN"); envToken != "" {
		return envToken
	}

	if envToken := os.Getenv("TAG2SHA_TOKEN"); envToken != "" {
		return envToken
	}

	if savedToken, _ := LoadToken(); savedToken != "" {
		return savedToken
	}

	return cfg.Token
}
