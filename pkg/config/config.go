package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/costar/pkg/gateway"
	"github.com/ritzau/costar/pkg/layout"
)

// DefaultFile is read from the working directory when --config is not set.
const DefaultFile = "costar.toml"

// EnvPrefix prefixes environment overrides (e.g., COSTAR_SERVER_PORT=9090).
const EnvPrefix = "COSTAR_"

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Gateway GatewayConfig `koanf:"gateway"`
	AGE     AGEConfig     `koanf:"age"`
	Neo4j   Neo4jConfig   `koanf:"neo4j"`
	Memory  MemoryConfig  `koanf:"memory"`
	Search  SearchConfig  `koanf:"search"`
	UI      UIConfig      `koanf:"ui"`
	Log     LogConfig     `koanf:"log"`
	Watch   bool          `koanf:"watch"`

	// File is the config file that was read, empty when none existed.
	File string `koanf:"-"`
}

type ServerConfig struct {
	Port      int     `koanf:"port"`
	RateLimit float64 `koanf:"ratelimit"` // requests per second, 0 disables limiting
	Burst     int     `koanf:"burst"`
}

type GatewayConfig struct {
	Backend string        `koanf:"backend"`
	Timeout time.Duration `koanf:"timeout"`
}

type AGEConfig struct {
	DSN   string `koanf:"dsn"`
	Graph string `koanf:"graph"`
}

type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

type MemoryConfig struct {
	Dataset string `koanf:"dataset"`
}

type SearchConfig struct {
	Limit int `koanf:"limit"`
}

type UIConfig struct {
	Physics       string `koanf:"physics"`
	HideBottomBar bool   `koanf:"hidebottombar"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// flagKeys maps command line flag names to config keys. Flags not listed
// here are ignored by Load.
var flagKeys = map[string]string{
	"port":            "server.port",
	"rate-limit":      "server.ratelimit",
	"burst":           "server.burst",
	"backend":         "gateway.backend",
	"timeout":         "gateway.timeout",
	"age-dsn":         "age.dsn",
	"age-graph":       "age.graph",
	"neo4j-uri":       "neo4j.uri",
	"neo4j-username":  "neo4j.username",
	"neo4j-password":  "neo4j.password",
	"neo4j-database":  "neo4j.database",
	"dataset":         "memory.dataset",
	"search-limit":    "search.limit",
	"physics":         "ui.physics",
	"hide-bottom-bar": "ui.hidebottombar",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"watch":           "watch",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"port":      8080,
			"ratelimit": 20.0,
			"burst":     40,
		},
		"gateway": map[string]interface{}{
			"backend": gateway.BackendMemory,
			"timeout": "10s",
		},
		"age": map[string]interface{}{
			"dsn":   "",
			"graph": gateway.DefaultAGEGraph,
		},
		"neo4j": map[string]interface{}{
			"uri":      "neo4j://localhost:7687",
			"username": "neo4j",
			"password": "",
			"database": "",
		},
		"memory": map[string]interface{}{
			"dataset": "",
		},
		"search": map[string]interface{}{
			"limit": 10,
		},
		"ui": map[string]interface{}{
			"physics":       layout.SolverForceAtlas2Based,
			"hidebottombar": false,
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "compact",
		},
		"watch": false,
	}
}

// RegisterFlags adds the standard flags to f. Defaults shown in help are
// informational; the effective defaults live in Load.
func RegisterFlags(f *pflag.FlagSet) {
	f.String("config", DefaultFile, "Config file (TOML)")
	f.Int("port", 8080, "HTTP port")
	f.Float64("rate-limit", 20, "Requests per second per server, 0 disables")
	f.Int("burst", 40, "Rate limiter burst")
	f.String("backend", gateway.BackendMemory, "Graph backend: age, neo4j or memory")
	f.Duration("timeout", 10*time.Second, "Gateway query timeout")
	f.String("age-dsn", "", "PostgreSQL DSN for the Apache AGE backend")
	f.String("age-graph", gateway.DefaultAGEGraph, "AGE graph name")
	f.String("neo4j-uri", "neo4j://localhost:7687", "Neo4j URI")
	f.String("neo4j-username", "neo4j", "Neo4j user")
	f.String("neo4j-password", "", "Neo4j password")
	f.String("neo4j-database", "", "Neo4j database (empty for the default)")
	f.String("dataset", "", "YAML dataset for the memory backend")
	f.Int("search-limit", 10, "Maximum search results (1 to 10)")
	f.String("physics", layout.SolverForceAtlas2Based, "Physics solver: barnesHut or forceAtlas2Based")
	f.Bool("hide-bottom-bar", false, "Hide the info bar")
	f.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	f.String("log-format", "compact", "Log format: compact or json")
	f.Bool("watch", false, "Reload display settings when the config file changes")
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	path := DefaultFile
	explicit := false
	if f != nil {
		if fl := f.Lookup("config"); fl != nil {
			path = fl.Value.String()
			explicit = fl.Changed
		}
	}
	return LoadFile(path, explicit, f)
}

// LoadFile is Load with an explicit config file. A missing file is an error
// only when required is set.
func LoadFile(path string, required bool, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	loaded := ""
	if path != "" {
		err := k.Load(file.Provider(path), toml.Parser())
		switch {
		case err == nil:
			loaded = path
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[fl.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(f, fl)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = loaded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Gateway.Backend {
	case gateway.BackendAGE, gateway.BackendNeo4j, gateway.BackendMemory:
	default:
		return fmt.Errorf("unknown gateway backend %q", c.Gateway.Backend)
	}
	if c.Gateway.Backend == gateway.BackendAGE && c.AGE.DSN == "" {
		return fmt.Errorf("age.dsn is required for the age backend")
	}
	if _, err := layout.Physics(c.UI.Physics); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if c.Search.Limit < 1 || c.Search.Limit > gateway.MaxSearchLimit {
		return fmt.Errorf("search.limit must be between 1 and %d, got %d", gateway.MaxSearchLimit, c.Search.Limit)
	}
	return nil
}

// GatewayOptions converts the backend sections to gateway.Options.
func (c *Config) GatewayOptions() gateway.Options {
	return gateway.Options{
		Backend:       c.Gateway.Backend,
		AGEDSN:        c.AGE.DSN,
		AGEGraph:      c.AGE.Graph,
		Neo4jURI:      c.Neo4j.URI,
		Neo4jUsername: c.Neo4j.Username,
		Neo4jPassword: c.Neo4j.Password,
		Neo4jDatabase: c.Neo4j.Database,
		MemoryDataset: c.Memory.Dataset,
	}
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
