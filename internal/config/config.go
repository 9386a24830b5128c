// Package config loads the JSON configuration shared by the bot and the
// API server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "MIROTOK_"

type Config struct {
	Token      string  `koanf:"token"`
	BotAPIUrl  string  `koanf:"bot_api_url"`
	BackendURL string  `koanf:"backend_url"`
	WebAppURL  string  `koanf:"web_app_url"`
	Admins     []int64 `koanf:"admins"`
	Doctors    []int64 `koanf:"doctors"`

	AssetsDir   string `koanf:"assets_dir"`
	CatalogPath string `koanf:"catalog_path"`
	HealthAddr  string `koanf:"health_addr"`
	ListLimit   int    `koanf:"list_limit"` // requests per page in the bot

	Storage StorageConfig `koanf:"storage"`
	API     APIConfig     `koanf:"api"`
}

type StorageConfig struct {
	Driver   string `koanf:"driver"` // sqlite, mongo
	DSN      string `koanf:"dsn"`
	Database string `koanf:"database"`
}

type APIConfig struct {
	Addr string `koanf:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		BackendURL:  "http://127.0.0.1:8000",
		AssetsDir:   "assets",
		CatalogPath: "assets/cards.csv",
		ListLimit:   5,
		Storage: StorageConfig{
			Driver:   "sqlite",
			DSN:      "data/mirotok.db",
			Database: "mirotok",
		},
		API: APIConfig{
			Addr: ":8000",
		},
	}
}

// Load reads path over the defaults and then applies MIROTOK_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			k := koanf.New(".")
			if err := k.Load(file.Provider(path), json.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
			if err := k.Unmarshal("", cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"BOT_TOKEN":        &cfg.Token,
		"BOT_API_URL":      &cfg.BotAPIUrl,
		"BACKEND_URL":      &cfg.BackendURL,
		"WEB_APP_URL":      &cfg.WebAppURL,
		"ASSETS_DIR":       &cfg.AssetsDir,
		"CATALOG_PATH":     &cfg.CatalogPath,
		"HEALTH_ADDR":      &cfg.HealthAddr,
		"STORAGE_DRIVER":   &cfg.Storage.Driver,
		"STORAGE_DSN":      &cfg.Storage.DSN,
		"STORAGE_DATABASE": &cfg.Storage.Database,
		"API_ADDR":         &cfg.API.Addr,
	}
	for key, dst := range str {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(envPrefix + "LIST_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%sLIST_LIMIT: invalid value %q", envPrefix, v)
		}
		cfg.ListLimit = n
	}

	ids := map[string]*[]int64{
		"ADMINS":  &cfg.Admins,
		"DOCTORS": &cfg.Doctors,
	}
	for key, dst := range ids {
		v := os.Getenv(envPrefix + key)
		if v == "" {
			continue
		}
		parsed, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = parsed
	}
	return nil
}

// parseIDs reads a comma separated list of chat ids.
func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

// IsAdmin reports whether id is listed in admins.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.Admins {
		if a == id {
			return true
		}
	}
	return false
}
