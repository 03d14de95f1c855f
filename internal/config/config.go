package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Poker  PokerSettings  `hcl:"poker,block"`
	Lobby  LobbySettings  `hcl:"lobby,block"`
}

// ServerSettings holds process-level settings.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	DBPath   string `hcl:"db_path,optional"`
}

// PokerSettings holds the poker table parameters.
type PokerSettings struct {
	SmallBlind     int `hcl:"small_blind,optional"`
	BigBlind       int `hcl:"big_blind,optional"`
	StartingStack  int `hcl:"starting_stack,optional"`
	TurnTimeoutSec int `hcl:"turn_timeout_seconds,optional"`
}

// LobbySettings holds lobby lifecycle parameters shared by both games.
type LobbySettings struct {
	MaxPlayers    int `hcl:"max_players,optional"`
	GraceSeconds  int `hcl:"grace_seconds,optional"`
	PublicPerGame int `hcl:"public_per_game,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
			DBPath:   "greenfelt.db",
		},
		Poker: PokerSettings{
			SmallBlind:     5,
			BigBlind:       10,
			StartingStack:  1000,
			TurnTimeoutSec: 30,
		},
		Lobby: LobbySettings{
			MaxPlayers:    8,
			GraceSeconds:  15,
			PublicPerGame: 3,
		},
	}
}

// Load reads an HCL config file, falling back to defaults when the file does
// not exist. Missing fields take their default values.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	def := Default()
	if cfg.Server.Address == "" {
		cfg.Server.Address = def.Server.Address
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = def.Server.DBPath
	}
	if cfg.Poker.SmallBlind == 0 {
		cfg.Poker.SmallBlind = def.Poker.SmallBlind
	}
	if cfg.Poker.BigBlind == 0 {
		cfg.Poker.BigBlind = def.Poker.BigBlind
	}
	if cfg.Poker.StartingStack == 0 {
		cfg.Poker.StartingStack = def.Poker.StartingStack
	}
	if cfg.Poker.TurnTimeoutSec == 0 {
		cfg.Poker.TurnTimeoutSec = def.Poker.TurnTimeoutSec
	}
	if cfg.Lobby.MaxPlayers == 0 {
		cfg.Lobby.MaxPlayers = def.Lobby.MaxPlayers
	}
	if cfg.Lobby.GraceSeconds == 0 {
		cfg.Lobby.GraceSeconds = def.Lobby.GraceSeconds
	}
	if cfg.Lobby.PublicPerGame == 0 {
		cfg.Lobby.PublicPerGame = def.Lobby.PublicPerGame
	}
	return &cfg, nil
}

// ListenAddr joins address and port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
