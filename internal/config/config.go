package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server" yaml:"server"`
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
	Gateway   GatewayConfig    `json:"gateway" yaml:"gateway"`
	Database  DatabaseConfig   `json:"database" yaml:"database"`
	Autonomy  AutonomyConfig   `json:"autonomy" yaml:"autonomy"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id" yaml:"id"`
	Type     string            `json:"type" yaml:"type"`
	Name     string            `json:"name" yaml:"name"`
	Endpoint string            `json:"endpoint" yaml:"endpoint"`
	APIKey   string            `json:"api_key" yaml:"api_key"`
	Models   []string          `json:"models,omitempty" yaml:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack" yaml:"slack"`
	Discord DiscordGatewayConfig `json:"discord" yaml:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	AppToken string `json:"app_token" yaml:"app_token"`
	Channel  string `json:"channel" yaml:"channel"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	Channel  string `json:"channel" yaml:"channel"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Neo4j    Neo4jConfig    `json:"neo4j" yaml:"neo4j"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url"`
	// CacheTTLSeconds bounds how long engine state stays cached. 0 disables the cache.
	CacheTTLSeconds int `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
}

// AutonomyConfig controls the decision loop.
type AutonomyConfig struct {
	Agents           []AgentConfig        `json:"agents" yaml:"agents"`
	Activities       []string             `json:"activities" yaml:"activities"`
	HeartbeatMinutes int                  `json:"heartbeat_minutes" yaml:"heartbeat_minutes"`
	TickSeconds      int                  `json:"tick_seconds" yaml:"tick_seconds"`
	TimeScale        float64              `json:"time_scale" yaml:"time_scale"`
	Timezone         string               `json:"timezone" yaml:"timezone"`
	CooldownMinutes  int                  `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	AlteredStates    []AlteredStateConfig `json:"altered_states,omitempty" yaml:"altered_states,omitempty"`
}

// AgentConfig seeds one agent. Seed keys are trait field names.
type AgentConfig struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Personality string             `json:"personality,omitempty" yaml:"personality,omitempty"`
	Seed        map[string]float64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

type AlteredStateConfig struct {
	Kind            string             `json:"kind" yaml:"kind"`
	Description     string             `json:"description" yaml:"description"`
	Effects         map[string]float64 `json:"effects" yaml:"effects"`
	DurationMinutes int                `json:"duration_minutes" yaml:"duration_minutes"`
}

// Heartbeat returns the world-time interval between decision rounds.
func (a AutonomyConfig) Heartbeat() time.Duration {
	if a.HeartbeatMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(a.HeartbeatMinutes) * time.Minute
}

// Tick returns the wall-clock interval of the world clock.
func (a AutonomyConfig) Tick() time.Duration {
	if a.TickSeconds <= 0 {
		return time.Second
	}
	return time.Duration(a.TickSeconds) * time.Second
}

// Scale returns the world clock speed multiplier.
func (a AutonomyConfig) Scale() float64 {
	if a.TimeScale <= 0 {
		return 1.0
	}
	return a.TimeScale
}

// Cooldown returns the altered-state cooldown.
func (a AutonomyConfig) Cooldown() time.Duration {
	if a.CooldownMinutes <= 0 {
		return 120 * time.Minute
	}
	return time.Duration(a.CooldownMinutes) * time.Minute
}

// Location resolves Timezone, falling back to local time.
func (a AutonomyConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", a.Timezone, err)
	}
	return loc, nil
}

// SeedFields resolves seed keys to trait fields. Mood keys may omit the
// "mood." prefix.
func (a AgentConfig) SeedFields() (map[traits.Field]float64, error) {
	out := make(map[traits.Field]float64, len(a.Seed))
	for k, v := range a.Seed {
		f, err := traitField(k)
		if err != nil {
			return nil, fmt.Errorf("agent %s seed: %w", a.ID, err)
		}
		out[f] = v
	}
	return out, nil
}

// ActivityKinds parses the configured activity list. An empty list means
// every kind.
func (a AutonomyConfig) ActivityKinds() ([]activity.Kind, error) {
	if len(a.Activities) == 0 {
		return append([]activity.Kind(nil), activity.All...), nil
	}
	kinds := make([]activity.Kind, 0, len(a.Activities))
	seen := make(map[activity.Kind]bool)
	for _, name := range a.Activities {
		k, err := activity.Parse(name)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// AlteredDefinitions converts the configured altered states, falling back
// to the built-in set when none are configured.
func (a AutonomyConfig) AlteredDefinitions() ([]altered.Definition, error) {
	if len(a.AlteredStates) == 0 {
		return altered.DefaultDefinitions(), nil
	}
	defs := make([]altered.Definition, 0, len(a.AlteredStates))
	for _, sc := range a.AlteredStates {
		if sc.Kind == "" {
			return nil, fmt.Errorf("altered state without kind")
		}
		effects := make(map[traits.Field]float64, len(sc.Effects))
		for k, v := range sc.Effects {
			f, err := traitField(k)
			if err != nil {
				return nil, fmt.Errorf("altered state %s: %w", sc.Kind, err)
			}
			effects[f] = v
		}
		d := time.Duration(sc.DurationMinutes) * time.Minute
		if d <= 0 {
			d = time.Hour
		}
		defs = append(defs, altered.Definition{
			Kind:        altered.Kind(strings.ToLower(sc.Kind)),
			Description: sc.Description,
			Effects:     effects,
			Duration:    d,
		})
	}
	return defs, nil
}

func traitField(name string) (traits.Field, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if f := traits.Field(n); f.Valid() {
		return f, nil
	}
	if f := traits.Field("mood." + n); f.Valid() {
		return f, nil
	}
	return "", fmt.Errorf("unknown trait field %q", name)
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Expand substitutes ${VAR} and ${VAR:default} with environment values.
func Expand(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})
}

// Load reads a JSON or YAML config file, chosen by extension, and substitutes
// environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	resolved := []byte(Expand(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(resolved, &cfg)
	default:
		err = json.Unmarshal(resolved, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
