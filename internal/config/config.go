package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Trust      TrustConfig      `yaml:"trust"`
	Seal       SealConfig       `yaml:"seal"`
	Graph      GraphConfig      `yaml:"graph"`
	Revocation RevocationConfig `yaml:"revocation"`
	Identity   IdentityConfig   `yaml:"identity"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Events     EventsConfig     `yaml:"events"`
	Webhooks   WebhooksConfig   `yaml:"webhooks"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type TrustConfig struct {
	Weights      TrustWeights `yaml:"weights"`
	DecayPerDay  float64      `yaml:"decay_per_day"`
	Baseline     float64      `yaml:"baseline"`
	SweepMinutes int          `yaml:"sweep_minutes"`
}

type TrustWeights struct {
	Behavioral    float64 `yaml:"behavioral"`
	Social        float64 `yaml:"social"`
	Cryptographic float64 `yaml:"cryptographic"`
}

type SealConfig struct {
	TTLMinutes int    `yaml:"ttl_minutes"`
	SigningKey string `yaml:"signing_key"` // base64 seed; empty = ephemeral
}

type GraphConfig struct {
	MaxHops     int     `yaml:"max_hops"`
	MinStrength float64 `yaml:"min_strength"`
}

type RevocationConfig struct {
	QuarantinePenalty float64 `yaml:"quarantine_penalty"`
	AutoWindowMinutes int     `yaml:"auto_window_minutes"`
	SweepSeconds      int     `yaml:"sweep_seconds"`
}

type IdentityConfig struct {
	Backend     string `yaml:"backend"` // memory, redis, postgres
	RedisAddr   string `yaml:"redis_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`
	TrustDomain string `yaml:"trust_domain"`
}

type ResolverConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UseSupabase    bool   `yaml:"use_supabase"`
}

type EventsConfig struct {
	Backend   string `yaml:"backend"` // memory, pubsub
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

type WebhooksConfig struct {
	Backend    string `yaml:"backend"` // memory, cloudtasks
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	Workers    int    `yaml:"workers"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Trust.Weights == (TrustWeights{}) {
		c.Trust.Weights = TrustWeights{Behavioral: 0.5, Social: 0.3, Cryptographic: 0.2}
	}
	if c.Trust.DecayPerDay == 0 {
		c.Trust.DecayPerDay = 0.95
	}
	if c.Trust.SweepMinutes == 0 {
		c.Trust.SweepMinutes = 60
	}
	if c.Seal.TTLMinutes == 0 {
		c.Seal.TTLMinutes = 15
	}
	if c.Graph.MaxHops == 0 {
		c.Graph.MaxHops = 6
	}
	if c.Graph.MinStrength == 0 {
		c.Graph.MinStrength = 0.5
	}
	if c.Revocation.QuarantinePenalty == 0 {
		c.Revocation.QuarantinePenalty = 50
	}
	if c.Revocation.AutoWindowMinutes == 0 {
		c.Revocation.AutoWindowMinutes = 60
	}
	if c.Revocation.SweepSeconds == 0 {
		c.Revocation.SweepSeconds = 60
	}
	if c.Identity.Backend == "" {
		c.Identity.Backend = "memory"
	}
	if c.Identity.TrustDomain == "" {
		c.Identity.TrustDomain = "trustcore.local"
	}
	if c.Resolver.TimeoutSeconds == 0 {
		c.Resolver.TimeoutSeconds = 5
	}
	if c.Events.Backend == "" {
		c.Events.Backend = "memory"
	}
	if c.Webhooks.Backend == "" {
		c.Webhooks.Backend = "memory"
	}
	if c.Webhooks.Workers == 0 {
		c.Webhooks.Workers = 4
	}
}

// Validate fails fast on configs that would corrupt scoring: component
// weights must sum to 1.0.
func (c *Config) Validate() error {
	w := c.Trust.Weights
	sum := w.Behavioral + w.Social + w.Cryptographic
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("trust weights must sum to 1.0, got %f", sum)
	}
	if w.Behavioral < 0 || w.Social < 0 || w.Cryptographic < 0 {
		return fmt.Errorf("trust weights must be non-negative")
	}
	if c.Trust.DecayPerDay <= 0 || c.Trust.DecayPerDay > 1 {
		return fmt.Errorf("decay_per_day must be in (0, 1], got %f", c.Trust.DecayPerDay)
	}
	return nil
}
