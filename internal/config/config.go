package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Charging ChargingConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Port        string
	Debug       bool
}

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type DatabaseConfig struct {
	MongoDB MongoConfig
}

type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

type SecurityConfig struct {
	JWT JWTConfig
}

type JWTConfig struct {
	Secret     string
	ExpiryHour int
	Issuer     string
}

// ChargingConfig controls the request lifecycle defaults.
type ChargingConfig struct {
	DefaultTokenCost int
	StartingBalance  int
}

// ChatConfig controls the per-request chat channel.
type ChatConfig struct {
	MessageRetention time.Duration
}

func Load() *Config {
	return &Config{
		App:      loadAppConfig(),
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Security: loadSecurityConfig(),
		Charging: loadChargingConfig(),
		Chat:     loadChatConfig(),
	}
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:        getEnv("APP_NAME", "EV Helper"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "5000"),
		Debug:       getEnvAsBool("DEBUG", false),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Port:         getEnv("HTTP_PORT", "5000"),
			Host:         getEnv("HTTP_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER", 1024),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			AllowedMethods:   getEnvAsSlice("CORS_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   getEnvAsSlice("CORS_HEADERS", "Origin,Content-Type,Accept,Authorization"),
			AllowCredentials: getEnvAsBool("CORS_CREDENTIALS", true),
			MaxAge:           getEnvAsDuration("CORS_MAX_AGE", "12h"),
		},
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MongoDB: MongoConfig{
			URI:                    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:               getEnv("MONGODB_DATABASE", "evhelper"),
			MaxPoolSize:            getEnvAsUint64("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:            getEnvAsUint64("MONGODB_MIN_POOL_SIZE", 5),
			MaxConnIdleTime:        getEnvAsDuration("MONGODB_MAX_IDLE_TIME", "30m"),
			ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", "10s"),
			ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", "5s"),
		},
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key"),
			ExpiryHour: getEnvAsInt("JWT_EXPIRY_HOUR", 24),
			Issuer:     getEnv("JWT_ISSUER", "evhelper-backend"),
		},
	}
}

func loadChargingConfig() ChargingConfig {
	return ChargingConfig{
		DefaultTokenCost: getEnvAsInt("CHARGING_DEFAULT_TOKEN_COST", 5),
		StartingBalance:  getEnvAsInt("CHARGING_STARTING_BALANCE", 20),
	}
}

func loadChatConfig() ChatConfig {
	return ChatConfig{
		MessageRetention: getEnvAsDuration("CHAT_MESSAGE_RETENTION", "24h"),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}
