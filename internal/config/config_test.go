package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("FRONTEND_URL", "http://localhost:5173")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.JWT.Secret != devJWTSecret {
		t.Errorf("expected development secret fallback, got %q", cfg.JWT.Secret)
	}
	if cfg.ThinkDelay != 800*time.Millisecond {
		t.Errorf("ThinkDelay = %v, want 800ms", cfg.ThinkDelay)
	}
	if cfg.Password.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.Password.BcryptCost)
	}
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("FRONTEND_URL", "https://skillworlds.example.com")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing in production")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("FRONTEND_URL", "https://skillworlds.example.com")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("CHAT_THINK_DELAY", "0")
	t.Setenv("DB_RETRY_BASE_DELAY", "75ms")
	t.Setenv("BCRYPT_COST", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ThinkDelay != 0 {
		t.Errorf("ThinkDelay = %v, want 0", cfg.ThinkDelay)
	}
	if cfg.Retry.DatabaseRetryBaseDelay != 75*time.Millisecond {
		t.Errorf("DatabaseRetryBaseDelay = %v", cfg.Retry.DatabaseRetryBaseDelay)
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://skillworlds.example.com" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:        "8080",
			DBPath:      "x.db",
			FlowIdleTTL: time.Minute,
			JWT:         JWTConfig{Secret: "0123456789abcdef", Expiration: time.Hour},
			Password:    PasswordConfig{BcryptCost: 10},
			RateLimit:   RateLimitConfig{PerSecond: 1, Burst: 1},
			Retry:       RetryConfig{DatabaseMaxRetries: 1},
			Transcript:  TranscriptConfig{Dir: "logs", QueueSize: 1},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	cases := map[string]func(*Config){
		"empty port":     func(c *Config) { c.Port = "" },
		"negative delay": func(c *Config) { c.ThinkDelay = -time.Second },
		"short secret":   func(c *Config) { c.JWT.Secret = "short" },
		"bcrypt cost":    func(c *Config) { c.Password.BcryptCost = 4 },
		"zero burst":     func(c *Config) { c.RateLimit.Burst = 0 },
		"zero queue":     func(c *Config) { c.Transcript.QueueSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
