package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	DB        DBConfig
	Auth      AuthConfig
	Notify    NotifyConfig
	Rental    RentalConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Addr string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type AuthConfig struct {
	JWTSecret     string
	DevTokens     bool
	TokenTTLHours int
}

type NotifyConfig struct {
	WebhookURL string
}

type RentalConfig struct {
	// InternalDiscountRate applies to GREENWICH_INTERNAL orders at snapshot
	// time, e.g. "0.10" for a 10% discount.
	InternalDiscountRate string
}

type SchedulerConfig struct {
	OverdueCron string
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	devTokens, _ := strconv.ParseBool(getEnv("AUTH_DEV_TOKENS", "false"))
	tokenTTL, _ := strconv.Atoi(getEnv("AUTH_TOKEN_TTL_HOURS", "12"))

	return Config{
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "rentora"),
			Password: getEnv("DB_PASSWORD", "rentora"),
			Name:     getEnv("DB_NAME", "rentora"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			DevTokens:     devTokens,
			TokenTTLHours: tokenTTL,
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Rental: RentalConfig{
			InternalDiscountRate: getEnv("INTERNAL_DISCOUNT_RATE", "0.10"),
		},
		Scheduler: SchedulerConfig{
			OverdueCron: getEnv("OVERDUE_CRON", "0 8 * * *"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
