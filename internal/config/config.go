// Package config loads the pipeline configuration file and the
// database credentials env file.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// DSN selects the store: a postgres:// URL or a sqlite file path.
	// DSNEnv names an env var that overrides it, so credentials stay
	// out of the config file.
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`

	// AssetDir is where the built-in generator writes payloads.
	AssetDir string `yaml:"asset_dir"`
	// AssetBaseURL enables existence checks against the asset server.
	// Empty skips the check.
	AssetBaseURL string `yaml:"asset_base_url"`
	AssetPrefix  string `yaml:"asset_prefix"`

	// Grids to process. Empty means every grid with surveys.
	Grids []string `yaml:"grids"`

	// Levels forces the pyramid depth per group; 0 derives it from
	// each group's extent.
	Levels int `yaml:"levels"`
	// CornersTouch joins regions that meet only at a corner, needed on
	// grids that place regions diagonally.
	CornersTouch bool `yaml:"corners_touch"`

	// MetricsAddr serves prometheus counters when set, e.g. ":9309".
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads the yaml config. An env file beside it (envPath, usually
// ".env") is loaded first when present; the config's dsn_env then
// resolves against it.
func Load(path, envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if c.DSNEnv != "" {
		if v := os.Getenv(c.DSNEnv); v != "" {
			c.DSN = v
		}
	}
	if c.DSN == "" {
		return c, fmt.Errorf("%s: no dsn configured", path)
	}
	return c, nil
}
