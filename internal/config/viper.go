package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/hometree/hometree/internal/herror"
)

// EnvPrefix is the environment variable prefix viper binds against.
const EnvPrefix = "HOMETREE"

// Load reads {configDir}/config.toml (if present) over the defaults and
// returns a normalized, validated Config. A missing file is not an error:
// Default() is normalized and returned instead.
func Load(configDir string) (Config, error) {
	cfg := Default()

	path := ConfigFilePath(configDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Normalize(&cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		return Config{}, herror.Wrap(herror.Configuration, err, fmt.Sprintf("failed to read config file %s", path))
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, herror.Wrap(herror.Configuration, err, "failed to unmarshal config")
	}

	if err := Normalize(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
