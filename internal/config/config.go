package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds everything the server needs at startup. Values come
// from an optional YAML file with FMS_* environment overrides.
type Config struct {
	Env         string `yaml:"env" env:"FMS_ENV" env-default:"prod"`
	DBPath      string `yaml:"db_path" env:"FMS_DB_PATH" env-default:"fms.db"`
	CompanyName string `yaml:"company_name" env:"FMS_COMPANY_NAME" env-default:"Your Company"`

	HTTPServer `yaml:"http_server"`

	SessionTTL       time.Duration `yaml:"session_ttl" env:"FMS_SESSION_TTL" env-default:"24h"`
	ForecastDays     int           `yaml:"forecast_days" env:"FMS_FORECAST_DAYS" env-default:"182"`
	CertWarningDays  int           `yaml:"cert_warning_days" env:"FMS_CERT_WARNING_DAYS" env-default:"30"`
	NotifyInterval   time.Duration `yaml:"notify_interval" env:"FMS_NOTIFY_INTERVAL" env-default:"5m"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"FMS_ADDRESS" env-default:":9000"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Load reads the config file at path when it exists, then applies
// environment overrides. An empty or missing path is not an error:
// the environment and defaults carry the whole config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
