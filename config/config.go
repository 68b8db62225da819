package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	JWTSecret      string
	TicketTTL      time.Duration
	RequireTicket  bool
	RoomIDStrategy string
	SendBuffer     int
	ICE            ICEConfig
	Redis          RedisConfig
}

// ICEConfig lists the STUN/TURN servers handed to browsers.
type ICEConfig struct {
	URLs       []string
	Username   string
	Credential string
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

// IsProduction reports whether the server runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	origins := splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		TicketTTL:      getEnvDuration("TICKET_TTL", time.Hour),
		RequireTicket:  getEnvBool("REQUIRE_TICKET", false),
		RoomIDStrategy: getEnv("ROOM_ID_STRATEGY", "uuid"),
		SendBuffer:     getEnvInt("SEND_BUFFER", 256),
		ICE: ICEConfig{
			URLs:       splitList(getEnv("ICE_SERVERS", "stun:stun.l.google.com:19302")),
			Username:   getEnv("ICE_USERNAME", ""),
			Credential: getEnv("ICE_CREDENTIAL", ""),
		},
		Redis: RedisConfig{
			Enabled:     getEnvBool("REDIS_ENABLED", false),
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			PresenceTTL: getEnvDuration("PRESENCE_TTL", 24*time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
