package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/camerafeed"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/provider"
	"github.com/willie68/go_tilefeed/internal/telemetry"
	"github.com/willie68/go_tilefeed/internal/tilecache"
	"go.yaml.in/yaml/v3"
)

// EnvPrefix prefix of all environment variables overriding the config file
const EnvPrefix = "TILEFEED_"

type Config struct {
	Port        int                `yaml:"port" json:"port" env:"PORT" validate:"gte=0,lte=65535"`
	Healthport  int                `yaml:"healthport" json:"healthport" env:"HEALTHPORT" validate:"gte=0,lte=65535"`
	Logging     logging.Config     `yaml:"logging" json:"logging" envPrefix:"LOGGING_"`
	Cache       tilecache.Config   `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	Controller  Controller         `yaml:"controller" json:"controller" envPrefix:"CONTROLLER_"`
	Providers   provider.ConfigMap `yaml:"providers" json:"providers" validate:"required,min=1"`
	Active      Active             `yaml:"active" json:"active" envPrefix:"ACTIVE_"`
	Redis       camerafeed.Config  `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
	Telemetry   telemetry.Config   `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`
	Metrics     bool               `yaml:"metrics" json:"metrics" env:"METRICS"`
	Measurement bool               `yaml:"measurement" json:"measurement" env:"MEASUREMENT"`
}

type Controller struct {
	Zoom   int `yaml:"zoom" json:"zoom" env:"ZOOM" validate:"gte=0,lte=30"`
	Radius int `yaml:"radius" json:"radius" env:"RADIUS" validate:"gte=0,lte=10"`
}

// Active names the providers the controller uses
type Active struct {
	Tiles string   `yaml:"tiles" json:"tiles" env:"TILES" validate:"required"`
	Pois  []string `yaml:"pois" json:"pois" env:"POIS" envSeparator:","`
}

// Option changes the loaded config
type Option func(c *Config)

var (
	lock   sync.RWMutex
	config Config
)

// Get a copy of the actual config
func Get() Config {
	lock.RLock()
	defer lock.RUnlock()
	return config
}

func (c Config) GetProviderConfig() provider.ConfigMap {
	return c.Providers
}

// WithPort overrides the port, 0 keeps the configured one
func WithPort(port int) Option {
	return func(c *Config) {
		if port > 0 {
			c.Port = port
		}
	}
}

// SetParameter applies the options to the loaded config
func SetParameter(opts ...Option) {
	lock.Lock()
	defer lock.Unlock()
	for _, o := range opts {
		o(&config)
	}
}

// Load reads the config file, applies the environment and validates the result
func Load(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "can't load config file %s", file)
	}
	c, err := Parse(data)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	config = *c
	return nil
}

// Parse reads a yaml config, overrides it from environment variables (a .env
// file is loaded if present) and validates it
func Parse(data []byte) (*Config, error) {
	c := defaults()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "can't unmarshal config file")
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.New("config").Warn(fmt.Sprintf("can't load .env file: %v", err))
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "can't apply environment")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaults() *Config {
	return &Config{
		Port:       8580,
		Healthport: 8581,
		Logging:    logging.Config{Level: "info"},
		Cache: tilecache.Config{
			Size:      tilecache.DefaultSize,
			Extension: tilecache.DefaultExtension,
		},
		Controller: Controller{Zoom: 19, Radius: 2},
		Redis:      camerafeed.Config{Topic: camerafeed.DefaultTopic},
	}
}

// Validate checks the config, all active providers must be configured
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	tp, ok := c.Providers[c.Active.Tiles]
	if !ok {
		return errors.Errorf("invalid config: active tile provider %q not configured", c.Active.Tiles)
	}
	if isPoiType(tp.Type) {
		return errors.Errorf("invalid config: %q is no tile provider", c.Active.Tiles)
	}
	for _, n := range c.Active.Pois {
		pp, ok := c.Providers[n]
		if !ok {
			return errors.Errorf("invalid config: active poi provider %q not configured", n)
		}
		if !isPoiType(pp.Type) {
			return errors.Errorf("invalid config: %q is no poi provider", n)
		}
	}
	return nil
}

func isPoiType(t string) bool {
	switch t {
	case "poi-http", "poi-file", "poi-kv":
		return true
	}
	return false
}

// Init registers the config and its parts in the injector. The cache config
// is registered by the caller, its path depends on the active tile provider.
func Init(inj do.Injector) {
	c := Get()
	do.ProvideValue(inj, &c)
	do.ProvideValue(inj, &c.Logging)
	do.ProvideValue(inj, *NewVersion())
}

// JSON the actual config as json, empty on error
func JSON() string {
	c := Get()
	js, err := c.JSON()
	if err != nil {
		return ""
	}
	return js
}

func (c *Config) JSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("can't marshal config to json: %s", err.Error())
	}
	return string(data), nil
}
