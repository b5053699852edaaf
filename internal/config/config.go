// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ESI configures the remote fleet-control client.
type ESI struct {
	BaseURL     string        `yaml:"base_url"`
	Token       string        `yaml:"token"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Greptime configures the optional time-series sink.
type Greptime struct {
	Endpoint     string `yaml:"endpoint"`
	Database     string `yaml:"database"`
	HistoryTable string `yaml:"history_table"`
	LossTable    string `yaml:"loss_table"`
}

// Admin configures the operator HTTP API.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RosterConfig is the root configuration of the roster engine.
type RosterConfig struct {
	FleetID            int64         `yaml:"fleet_id"`
	MainCharacterID    int64         `yaml:"main_character_id"`
	AltIDs             []int64       `yaml:"alt_ids"`
	AltAliases         []string      `yaml:"alt_aliases"`
	DefaultShipTypes   []string      `yaml:"default_ship_types"`
	HistorySize        int           `yaml:"history_size"`
	LossHistorySize    int           `yaml:"loss_history_size"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	WorkerPoolSize     int           `yaml:"worker_pool_size"`
	MaxPerSquad        int           `yaml:"max_per_squad"`
	KickDelay          time.Duration `yaml:"kick_delay"`
	LossSameShip       bool          `yaml:"loss_same_ship"`
	ShipCatalogPath    string        `yaml:"ship_catalog_path"`
	CharacterCachePath string        `yaml:"character_cache_path"`
	ESI                ESI           `yaml:"esi"`
	Greptime           Greptime      `yaml:"greptime"`
	Admin              Admin         `yaml:"admin"`
	Log                Log           `yaml:"log"`
}

// DefaultShipTypeIDs is the formation ship set used when neither the
// configuration nor the ship catalog provide one: Purifier, Manticore,
// Nemesis and Hound.
var DefaultShipTypeIDs = []int64{12038, 12032, 11377, 12034}

// Default returns a configuration with every optional field filled in.
func Default() *RosterConfig {
	cfg := &RosterConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *RosterConfig) applyDefaults() {
	if len(c.AltAliases) == 0 {
		c.AltAliases = []string{"alt", "account"}
	}
	if len(c.DefaultShipTypes) == 0 {
		for _, id := range DefaultShipTypeIDs {
			c.DefaultShipTypes = append(c.DefaultShipTypes, strconv.FormatInt(id, 10))
		}
	}
	if c.HistorySize == 0 {
		c.HistorySize = 10
	}
	if c.LossHistorySize == 0 {
		c.LossHistorySize = 5
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = time.Minute
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 5
	}
	if c.MaxPerSquad == 0 {
		c.MaxPerSquad = 8
	}
	if c.KickDelay == 0 {
		c.KickDelay = 100 * time.Millisecond
	}
	if c.ShipCatalogPath == "" {
		c.ShipCatalogPath = "data/ships.csv"
	}
	if c.CharacterCachePath == "" {
		c.CharacterCachePath = "data/characters.yaml"
	}
	if c.ESI.MaxAttempts == 0 {
		c.ESI.MaxAttempts = 3
	}
	if c.ESI.Timeout == 0 {
		c.ESI.Timeout = 30 * time.Second
	}
	if c.Greptime.Database == "" {
		c.Greptime.Database = "public"
	}
	if c.Greptime.HistoryTable == "" {
		c.Greptime.HistoryTable = "fleet_roster"
	}
	if c.Greptime.LossTable == "" {
		c.Greptime.LossTable = "fleet_loss"
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// applyEnv lets the environment override a handful of deployment settings.
func (c *RosterConfig) applyEnv() error {
	if v := os.Getenv("FLEET_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FLEET_ID: %w", err)
		}
		c.FleetID = id
	}
	if v := os.Getenv("ESI_TOKEN"); v != "" {
		c.ESI.Token = v
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
		}
		c.RefreshInterval = d
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *RosterConfig) Validate() error {
	if c.HistorySize < 2 {
		return fmt.Errorf("history_size must be at least 2 to estimate losses, got %d", c.HistorySize)
	}
	if c.LossHistorySize < 1 {
		return fmt.Errorf("loss_history_size must be positive, got %d", c.LossHistorySize)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	if c.MaxPerSquad < 1 {
		return fmt.Errorf("max_per_squad must be positive, got %d", c.MaxPerSquad)
	}
	if c.KickDelay < 0 {
		return fmt.Errorf("kick_delay must not be negative, got %s", c.KickDelay)
	}
	for _, id := range c.AltIDs {
		if id <= 0 {
			return fmt.Errorf("alt_ids must be positive, got %d", id)
		}
	}
	return nil
}

// Load loads YAML config and validates it against a CUE schema. An empty
// cueSchemaPath uses the built-in schema.
func Load(configPath, cueSchemaPath string) (*RosterConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg RosterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("loaded configuration", "component", "config", "path", configPath,
		"fleet_id", cfg.FleetID, "refresh_interval", cfg.RefreshInterval, "pool", cfg.WorkerPoolSize)
	return &cfg, nil
}
