// Package config loads strata settings from the environment and an
// optional .env file.
//
// Keys map to environment variables by upper-casing and replacing dots
// with underscores: store.driver is STORE_DRIVER, log.level is LOG_LEVEL.
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Store.Driver)
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/strata/internal/logger"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverGorm   = "gorm"
	DriverMemory = "memory"
)

// Config holds all configuration for the CLI.
type Config struct {
	// Store selects and locates the persistence backend.
	Store StoreConfig `mapstructure:"store"`
	// Schema locates the CUE entity schemas.
	Schema SchemaConfig `mapstructure:"schema"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
}

// StoreConfig selects a backend.
type StoreConfig struct {
	// Driver is sqlite, gorm or memory.
	Driver string `mapstructure:"driver" default:"sqlite"`
	// Path is the database file for the SQLite drivers.
	Path string `mapstructure:"path" default:"strata.db"`
	// Identifier names the store on pending updates. Defaults to Path.
	Identifier string `mapstructure:"identifier" default:""`
}

// SchemaConfig locates entity schemas. An empty Dir disables checking.
type SchemaConfig struct {
	Dir string `mapstructure:"dir" default:""`
}

// Validate reports unsupported settings.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverGorm:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want %s, %s or %s)",
			c.Store.Driver, DriverSQLite, DriverGorm, DriverMemory)
	}
	return nil
}

// LoadConfig loads configuration from environment variables and the .env
// file in dir, if present. Values in .env override the environment.
func LoadConfig(dir string) (*Config, error) {
	envPath := dir + "/.env"
	if dir == "." || dir == "" {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// bindValues walks the struct and registers every mapstructure key with
// its default tag value, so AutomaticEnv can see it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
