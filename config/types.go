package config

import "time"

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"FINTECHX_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	AppEnv     string `yaml:"app_env" env:"FINTECHX_APP_ENV" env-default:"prod"`
	DBDriver   string `yaml:"db_driver" env:"FINTECHX_DB_DRIVER"`
	DBURL      string `yaml:"db_url" env:"FINTECHX_DB_URL"`
	DBPath     string `yaml:"db_path" env:"FINTECHX_DB_PATH"`
	Pepper     string `yaml:"pepper" env:"FINTECHX_PEPPER"`

	Auth          AuthConfig          `yaml:"auth"`
	Fraud         FraudConfig         `yaml:"fraud"`
	Bootstrap     BootstrapConfig     `yaml:"bootstrap"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type AuthConfig struct {
	MaxFailedAttempts int           `yaml:"max_failed_attempts" env:"FINTECHX_AUTH_MAX_FAILED_ATTEMPTS" env-default:"5"`
	LockoutDuration   time.Duration `yaml:"lockout_duration" env:"FINTECHX_AUTH_LOCKOUT_DURATION" env-default:"15m"`
	SessionTimeout    time.Duration `yaml:"session_timeout" env:"FINTECHX_AUTH_SESSION_TIMEOUT" env-default:"8h"`
}

type FraudConfig struct {
	AmountThreshold  float64       `yaml:"amount_threshold" env:"FINTECHX_FRAUD_AMOUNT_THRESHOLD" env-default:"1000"`
	AllowedCountries []string      `yaml:"allowed_countries" env:"FINTECHX_FRAUD_ALLOWED_COUNTRIES" env-default:"US,CA,GB,AU"`
	VelocityMax      int           `yaml:"velocity_max" env:"FINTECHX_FRAUD_VELOCITY_MAX" env-default:"3"`
	VelocityWindow   time.Duration `yaml:"velocity_window" env:"FINTECHX_FRAUD_VELOCITY_WINDOW" env-default:"5m"`
	HistorySweepSpec string        `yaml:"history_sweep_spec" env:"FINTECHX_FRAUD_HISTORY_SWEEP_SPEC" env-default:"*/10 * * * *"`
	HistoryRetention time.Duration `yaml:"history_retention" env:"FINTECHX_FRAUD_HISTORY_RETENTION" env-default:"1h"`
}

type BootstrapConfig struct {
	AdminUsername string `yaml:"admin_username" env:"FINTECHX_ADMIN_USERNAME" env-default:"admin"`
	AdminEmail    string `yaml:"admin_email" env:"FINTECHX_ADMIN_EMAIL" env-default:"admin@localhost"`
	AdminPassword string `yaml:"admin_password" env:"FINTECHX_ADMIN_PASSWORD"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"FINTECHX_METRICS_ENABLED" env-default:"true"`
	MetricsToken   string `yaml:"metrics_token" env:"FINTECHX_METRICS_TOKEN"`
}
