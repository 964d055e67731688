package config

import (
	"fmt"
	"strings"
)

const defaultPepper = "hV3kQ0yJ9sXcR2mWfA7pLbT5nZ8dG1uE4oC6iK0vMjY"

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch driver {
	case "", "postgres", "pg":
		if strings.TrimSpace(cfg.DBURL) == "" && strings.TrimSpace(cfg.DBPath) == "" {
			return fmt.Errorf("db_url must be set for postgres driver")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return fmt.Errorf("db_path must be set for sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported db_driver: %s", cfg.DBDriver)
	}
	appEnv := strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	pep := strings.TrimSpace(cfg.Pepper)
	if pep == "" {
		return fmt.Errorf("pepper must be set via env")
	}
	if appEnv != "dev" && pep == defaultPepper {
		return fmt.Errorf("default pepper is not allowed outside APP_ENV=dev")
	}
	if len(cfg.Fraud.AllowedCountries) == 0 {
		return fmt.Errorf("fraud.allowed_countries must not be empty")
	}
	if cfg.Fraud.AmountThreshold < 0 {
		return fmt.Errorf("fraud.amount_threshold must not be negative")
	}
	return nil
}
