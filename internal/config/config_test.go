package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default environment is development", func(c *Config) bool { return c.Environment == "development" }},
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *Config) bool { return c.Port == 8080 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default metrics path", func(c *Config) bool { return c.MetricsPath == "/metrics" }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
		{"default monthly budget", func(c *Config) bool { return c.DefaultMonthlyBudget == 50 }},
		{"default daily budget", func(c *Config) bool { return c.DefaultDailyBudget == 5 }},
		{"default rate limit admin rpm", func(c *Config) bool { return c.RateLimitAdminRPM == 50 }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("unexpected value for %s", tt.name)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	cases := []struct {
		name   string
		cfg    Config
		expect bool
	}{
		{"development default", Config{Environment: "development"}, false},
		{"explicit production", Config{Environment: "production"}, true},
		{"case insensitive", Config{Environment: "PRODUCTION"}, true},
		{"azure functions production", Config{Environment: "development", AzureFunctionsEnvironment: "Production"}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cfg.IsProduction(); got != c.expect {
				t.Errorf("IsProduction() = %v, want %v", got, c.expect)
			}
		})
	}
}

func TestAuthEnabledForcedByProduction(t *testing.T) {
	cfg := Config{Environment: "production", EnableAuth: false}
	if !cfg.AuthEnabled() {
		t.Error("expected auth to be forced on in production mode")
	}
}

func TestValidateDegradesMissingLLMCredentials(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://x", Environment: "development"}
	statuses, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	var llm *SectionStatus
	for i := range statuses {
		if statuses[i].Name == "llm" {
			llm = &statuses[i]
		}
	}
	if llm == nil {
		t.Fatal("expected an llm section status")
	}
	if !llm.Fallback {
		t.Error("expected llm section to degrade to fallback mode without credentials")
	}
}

func TestValidateRejectsMissingDatabaseURL(t *testing.T) {
	cfg := Config{}
	if _, err := cfg.Validate(); err == nil {
		t.Error("expected an error when DATABASE_URL is missing")
	}
}
