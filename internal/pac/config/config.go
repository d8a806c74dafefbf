package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PACD_"

// ConfigFileEnv names an optional YAML, JSON or TOML file loaded between the
// defaults and the environment.
const ConfigFileEnv = EnvPrefix + "CONFIG_FILE"

// AppConfig holds the rr-pacd configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	Registry  RegistryConfig  `koanf:"registry"`
	Blocklist BlocklistConfig `koanf:"blocklist"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	PAC       PACConfig       `koanf:"pac"`
	HTTP      HTTPConfig      `koanf:"http"`
	Decision  DecisionConfig  `koanf:"decision"`
}

// RegistryConfig configures the remote registry of blocked domains.
type RegistryConfig struct {
	URL      string        `koanf:"url" validate:"required,http_url"`
	Interval time.Duration `koanf:"interval" validate:"gte=1s"`
	Timeout  time.Duration `koanf:"timeout" validate:"gte=1s"`
}

// BlocklistConfig configures the local blocklist.
type BlocklistConfig struct {
	DB            string        `koanf:"db" validate:"required"`
	Retention     time.Duration `koanf:"retention" validate:"gte=1s"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gte=1s"`
	Exclusions    []string      `koanf:"exclusions" validate:"dive,required"`
}

// ProxyConfig holds the upstream proxies embedded into the script.
type ProxyConfig struct {
	HTTPS string `koanf:"https" validate:"required,host_port"`
	HTTP  string `koanf:"http" validate:"required,host_port"`
}

// PACConfig configures where the script is published besides HTTP.
type PACConfig struct {
	// File, when set, receives every applied script.
	File string `koanf:"file"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr  string  `koanf:"addr" validate:"required,listen_addr"`
	Rate  float64 `koanf:"rate" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=0"`
}

// DecisionConfig configures the routing decision service.
type DecisionConfig struct {
	// CacheSize <= 0 disables the decision cache.
	CacheSize int     `koanf:"cache_size"`
	FPRate    float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG defines the default rr-pacd configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Registry: RegistryConfig{
		URL:      "https://reestr.rublacklist.net/api/v3/domains/",
		Interval: 2 * time.Hour,
		Timeout:  30 * time.Second,
	},
	Blocklist: BlocklistConfig{
		DB:            "/var/lib/rr-pac/state.db",
		Retention:     2_628_000 * time.Second,
		SweepInterval: 2 * time.Hour,
		Exclusions:    []string{"youtube.com"},
	},
	Proxy: ProxyConfig{
		HTTPS: "proxy-ssl.roskomsvoboda.org:33333",
		HTTP:  "proxy-nossl.roskomsvoboda.org:33333",
	},
	HTTP: HTTPConfig{
		Addr:  "127.0.0.1:8090",
		Rate:  1,
		Burst: 5,
	},
	Decision: DecisionConfig{
		CacheSize: 10_000,
		FPRate:    0.01,
	},
}

// sections are the nested tables; PACD_REGISTRY_URL maps to registry.url.
var sections = []string{"registry", "blocklist", "proxy", "pac", "http", "decision"}

// envKey maps an environment variable name to a koanf key.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(key, s+"_"); ok {
			return s + "." + rest
		}
	}
	return key
}

// validHostPort accepts "host:port" with a DNS name or IP and a port in 1..65535.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || host == "" || port == "" {
		return false
	}
	if strings.ContainsAny(host, " '\";") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// validListenAddr accepts "host:port" or ":port".
func validListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum < 65536
}

// envLoader loads PACD_ variables. Values containing spaces or commas
// become lists.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(key)
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads path with the parser picked from its extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the custom "host_port" and "listen_addr" tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("host_port", validHostPort); err != nil {
		return err
	}
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load builds the configuration from defaults, the optional config file and
// the environment, in that order, and validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
