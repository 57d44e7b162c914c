// Package config loads flakeview settings from defaults, config.yaml, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"flakeview/internal/common"
	"flakeview/internal/keypair"
	"flakeview/pkg/errors"
	"flakeview/pkg/models"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes environment overrides for non-Snowflake keys,
	// e.g. FLAKEVIEW_DEPLOYMENT_TARGET.
	EnvPrefix = "FLAKEVIEW"
	// ConfigEnv points at an explicit configuration file.
	ConfigEnv = "FLAKEVIEW_CONFIG"

	TargetSnowflake = "snowflake"
	TargetDuckDB    = "duckdb"
)

// snowflakeEnv maps configuration keys to the variables CI systems set.
var snowflakeEnv = map[string]string{
	"snowflake.account":          "SNOWFLAKE_ACCOUNT",
	"snowflake.user":             "SNOWFLAKE_USER",
	"snowflake.password":         "SNOWFLAKE_PASSWORD",
	"snowflake.private_key":      "SNOWFLAKE_PRIVATE_KEY",
	"snowflake.private_key_path": "SNOWFLAKE_PRIVATE_KEY_PATH",
	"snowflake.role":             "SNOWFLAKE_ROLE",
	"snowflake.warehouse":        "SNOWFLAKE_WAREHOUSE",
	"snowflake.database":         "SNOWFLAKE_DATABASE",
	"snowflake.schema":           "SNOWFLAKE_SCHEMA",
}

func GetConfigPath() string {
	if configFile := os.Getenv(ConfigEnv); configFile != "" {
		return filepath.Dir(configFile)
	}
	return common.AppDir()
}

func GetConfigFile() string {
	if configFile := os.Getenv(ConfigEnv); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(common.AppDir(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// SetDefaults registers every key with its default so environment
// overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	for key := range snowflakeEnv {
		v.SetDefault(key, "")
	}
	v.SetDefault("snowflake.login_timeout", "60s")
	v.SetDefault("snowflake.query_timeout", "5m")

	v.SetDefault("deployment.pipeline", "")
	v.SetDefault("deployment.target", TargetSnowflake)
	v.SetDefault("deployment.duckdb_path", "")
	v.SetDefault("deployment.validate", true)
	v.SetDefault("deployment.confirm", true)

	v.SetDefault("history.dir", "")
	v.SetDefault("history.max_records", 100)
	v.SetDefault("history.retention_days", 90)

	v.SetDefault("keygen.dir", keypair.DefaultDir)
	v.SetDefault("keygen.bits", keypair.DefaultBits)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	for key, env := range snowflakeEnv {
		_ = v.BindEnv(key, env)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the configuration file into v and decodes the merged settings.
// An empty file searches ./config.yaml then ~/.flakeview/config.yaml; finding
// neither is not an error. An explicit file must exist.
func Load(v *viper.Viper, file string) (*models.Config, error) {
	if file == "" {
		file = os.Getenv(ConfigEnv)
	}

	if file != "" {
		cleaned, err := common.CleanPath(file)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid config file path").
				WithContext("path", file)
		}
		if _, err := os.Stat(cleaned); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "Config file not found").
				WithContext("path", cleaned)
		}
		v.SetConfigFile(cleaned)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(GetConfigPath())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read config file").
				WithContext("path", v.ConfigFileUsed())
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decode configuration")
	}
	return &cfg, nil
}

// Validate checks the settings that do not depend on the target.
func Validate(cfg *models.Config) error {
	switch cfg.Deployment.Target {
	case TargetSnowflake, TargetDuckDB:
	default:
		return errors.ConfigError("deployment.target must be 'snowflake' or 'duckdb'", "deployment.target").
			WithContext("value", cfg.Deployment.Target)
	}
	if cfg.History.MaxRecords < 0 || cfg.History.RetentionDays < 0 {
		return errors.ConfigError("history limits must not be negative", "history")
	}
	return nil
}

// Save writes cfg to path without its secrets.
func Save(cfg *models.Config, path string) error {
	if path == "" {
		path = GetConfigFile()
	}
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid config file path").
			WithContext("path", path)
	}

	if err := os.MkdirAll(filepath.Dir(cleaned), common.DirPermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create config directory").
			WithContext("path", filepath.Dir(cleaned))
	}

	out := *cfg
	out.Snowflake.Password = ""
	out.Snowflake.PrivateKey = ""

	data, err := yaml.Marshal(out)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to marshal config")
	}

	if err := os.WriteFile(cleaned, data, common.FilePermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write config file").
			WithContext("path", cleaned)
	}
	return nil
}
