package config

import (
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Codes    CodesConfig    `mapstructure:"codes"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type CodesConfig struct {
	// Prefix prepended to generated invitation code strings.
	Prefix string `mapstructure:"prefix"`
	// SuffixLength is the number of random characters after the prefix.
	SuffixLength int `mapstructure:"suffix_length"`
	// MaxBulkIssue caps a single bulk-issuance request.
	MaxBulkIssue int `mapstructure:"max_bulk_issue"`
	// SweepSchedule is the cron spec for the expired-code sweep.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

type LimitsConfig struct {
	RegisterAttempts      int `mapstructure:"register_attempts"`
	RegisterWindowMinutes int `mapstructure:"register_window_minutes"`
	ValidateAttempts      int `mapstructure:"validate_attempts"`
	ValidateWindowMinutes int `mapstructure:"validate_window_minutes"`
}

func LoadConfig() *Config {
	config := &Config{}

	// Set default values
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "3090")
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "dev")
	viper.SetDefault("database.password", "devpass")
	viper.SetDefault("database.name", "partners")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("jwt.secret", "your-super-secret-jwt-key-change-in-production")
	viper.SetDefault("jwt.issuer", "partner-service")

	viper.SetDefault("nats.url", "")

	viper.SetDefault("codes.prefix", "GT")
	viper.SetDefault("codes.suffix_length", 8)
	viper.SetDefault("codes.max_bulk_issue", 100)
	viper.SetDefault("codes.sweep_schedule", "0 * * * *")

	viper.SetDefault("limits.register_attempts", 3)
	viper.SetDefault("limits.register_window_minutes", 30)
	viper.SetDefault("limits.validate_attempts", 10)
	viper.SetDefault("limits.validate_window_minutes", 1)

	// Read from environment variables
	viper.AutomaticEnv()

	// Override with environment variables if they exist
	if host := os.Getenv("SERVER_HOST"); host != "" {
		viper.Set("server.host", host)
	}
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		viper.Set("server.mode", mode)
	}

	// Database environment variables
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		viper.Set("database.host", dbHost)
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		viper.Set("database.port", dbPort)
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		viper.Set("database.user", dbUser)
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		viper.Set("database.password", dbPassword)
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		viper.Set("database.name", dbName)
	}
	if sslMode := os.Getenv("DB_SSLMODE"); sslMode != "" {
		viper.Set("database.sslmode", sslMode)
	}

	// Redis environment variables
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}

	// JWT environment variables
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("jwt.secret", jwtSecret)
	}

	// NATS environment variables
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		viper.Set("nats.url", natsURL)
	}

	// Invitation code environment variables
	if prefix := os.Getenv("CODE_PREFIX"); prefix != "" {
		viper.Set("codes.prefix", prefix)
	}

	if err := viper.Unmarshal(config); err != nil {
		panic("Failed to unmarshal config: " + err.Error())
	}

	return config
}
