// Package config loads CLI configuration, modeled on the teacher's
// cli/internal/config package: a viper-backed config file search path,
// .env/.env.local overlays via godotenv, and go-homedir for the
// cross-platform home directory lookup the teacher also relied on.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the engine's runtime configuration.
type Config struct {
	SchemaPath    string
	DatabaseURL   string
	Provider      string
	SkipEnvCheck  bool
	EngineVersion string
}

// Load reads configuration from flags (already bound into viper by the
// caller), environment (including values loaded from .env and .env.local),
// and a config file, in that order of precedence.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName(".queryc")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "queryc"))

	viper.SetEnvPrefix("QUERYC")
	viper.AutomaticEnv()
	viper.BindEnv("database_url", "DATABASE_URL")

	viper.SetDefault("schema_path", "schema.prisma")
	viper.SetDefault("skip_env_check", false)

	_ = viper.ReadInConfig()

	loadDotenv(".env")
	loadDotenv(".env.local")

	return &Config{
		SchemaPath:    viper.GetString("schema_path"),
		DatabaseURL:   viper.GetString("database_url"),
		Provider:      viper.GetString("provider"),
		SkipEnvCheck:  viper.GetBool("skip_env_check"),
		EngineVersion: viper.GetString("engine_version"),
	}, nil
}

func loadDotenv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return
	}
	for k, v := range envMap {
		os.Setenv(k, v)
	}
}
