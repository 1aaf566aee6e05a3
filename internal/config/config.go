// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the lobby service. Values come from the
// environment (a .env file is auto-loaded by cmd/server).
type Config struct {
	Port           string
	AllowedOrigins []string

	LogLevel  string
	LogFormat string

	CountdownSeconds int
	CountdownTick    time.Duration
	DisconnectGrace  time.Duration
	IdleTimeout      time.Duration
	SweepInterval    time.Duration
	OutboxSize       int

	TokenExpire  time.Duration
	TokenKeyPath string

	RedisAddr         string
	RedisDB           int
	HandoffQueue      string
	ActionQueue       string
	GameOutputChannel string

	// Warnings lists variables that were set but could not be parsed and
	// were replaced by their defaults.
	Warnings []string
}

// Load reads the configuration from the environment.
func Load() Config {
	var warn []string
	c := Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		CountdownSeconds: getEnvInt("COUNTDOWN_SECONDS", 5, &warn),
		CountdownTick:    getEnvDuration("COUNTDOWN_TICK", time.Second, &warn),
		DisconnectGrace:  getEnvDuration("DISCONNECT_GRACE", 15*time.Second, &warn),
		IdleTimeout:      getEnvDuration("LOBBY_IDLE_TIMEOUT", 10*time.Minute, &warn),
		SweepInterval:    getEnvDuration("LOBBY_SWEEP_INTERVAL", time.Minute, &warn),
		OutboxSize:       getEnvInt("OUTBOX_SIZE", 32, &warn),

		TokenExpire:  getTokenExpire(&warn),
		TokenKeyPath: getEnv("TOKEN_KEY_PATH", ""),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0, &warn),
		HandoffQueue:      getEnv("HANDOFF_QUEUE", "lobby_handoffs"),
		ActionQueue:       getEnv("ACTION_QUEUE", "lobby_game_actions"),
		GameOutputChannel: getEnv("GAME_OUTPUT_CHANNEL", "lobby_game_output"),
	}

	if c.CountdownSeconds < 1 {
		warn = append(warn, fmt.Sprintf("COUNTDOWN_SECONDS=%d is below 1, using 5", c.CountdownSeconds))
		c.CountdownSeconds = 5
	}
	if c.CountdownTick <= 0 {
		warn = append(warn, "COUNTDOWN_TICK must be positive, using 1s")
		c.CountdownTick = time.Second
	}
	if c.DisconnectGrace < 0 {
		warn = append(warn, "DISCONNECT_GRACE is negative, using 0 (immediate leave)")
		c.DisconnectGrace = 0
	}
	if c.OutboxSize < 1 {
		warn = append(warn, "OUTBOX_SIZE must be positive, using 32")
		c.OutboxSize = 32
	}
	c.Warnings = warn
	return c
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// RedisEnabled reports whether the game engine bridge should be started.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int, warn *[]string) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		*warn = append(*warn, fmt.Sprintf("%s=%q is not an integer, using %d", key, s, def))
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration, warn *[]string) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		*warn = append(*warn, fmt.Sprintf("%s=%q is not a duration, using %s", key, s, def))
		return def
	}
	return d
}

// getTokenExpire mirrors the TOKEN_EXPIRE_TIME convention: "never", "0" or
// unset disable expiry.
func getTokenExpire(warn *[]string) time.Duration {
	s := os.Getenv("TOKEN_EXPIRE_TIME")
	if s == "" || s == "never" || s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		*warn = append(*warn, fmt.Sprintf("TOKEN_EXPIRE_TIME=%q is not a duration, tokens will not expire", s))
		return 0
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
