package config

import (
	"testing"
	"time"
)

func TestValidateRejectsDefaultPepperInProd(t *testing.T) {
	cfg := &AppConfig{
		DBDriver: "postgres",
		DBURL:    "postgres://localhost/test",
		AppEnv:   "prod",
		Pepper:   defaultPepper,
		Fraud:    FraudConfig{AllowedCountries: []string{"US"}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for default pepper in prod")
	}
}

func TestValidateRejectsMissingDB(t *testing.T) {
	cfg := &AppConfig{
		DBDriver: "postgres",
		AppEnv:   "dev",
		Pepper:   "pepper",
		Fraud:    FraudConfig{AllowedCountries: []string{"US"}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing db_url")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &AppConfig{
		DBDriver: "oracle",
		AppEnv:   "dev",
		Pepper:   "pepper",
		Fraud:    FraudConfig{AllowedCountries: []string{"US"}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := &AppConfig{
		Fraud: FraudConfig{AllowedCountries: []string{" us ", "ca"}},
	}
	normalizeConfig(cfg)
	if cfg.Auth.MaxFailedAttempts != 5 {
		t.Fatalf("max failed attempts: got %d", cfg.Auth.MaxFailedAttempts)
	}
	if cfg.Auth.LockoutDuration != 15*time.Minute {
		t.Fatalf("lockout duration: got %v", cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.SessionTimeout != 8*time.Hour {
		t.Fatalf("session timeout: got %v", cfg.Auth.SessionTimeout)
	}
	if cfg.Fraud.VelocityMax != 3 || cfg.Fraud.VelocityWindow != 5*time.Minute {
		t.Fatalf("velocity defaults: got %d within %v", cfg.Fraud.VelocityMax, cfg.Fraud.VelocityWindow)
	}
	if cfg.Fraud.AllowedCountries[0] != "US" || cfg.Fraud.AllowedCountries[1] != "CA" {
		t.Fatalf("countries not normalized: %v", cfg.Fraud.AllowedCountries)
	}
}
