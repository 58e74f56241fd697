package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingToken = errors.New("TELEGRAM_TOKEN environment variable is required")

type HTTPConfig struct {
	Port           string
	AllowedOrigins []string
	SessionHeader  string
}

type LogConfig struct {
	Level string
	JSON  bool
	Color bool
}

type SessionConfig struct {
	IdleTimeout time.Duration
	// StreamBuffer - буфер канала одного SSE-подписчика
	StreamBuffer int
}

type TelegramConfig struct {
	Token string
	Debug bool
}

// AppConfig хранит всю конфигурацию приложения
type AppConfig struct {
	AppName        string
	HTTP           HTTPConfig
	Log            LogConfig
	Sessions       SessionConfig
	Telegram       TelegramConfig
	MetricsEnabled bool
}

// LoadConfig читает переменные окружения, при наличии подгружая .env.
// Отсутствие .env не ошибка.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath...)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env file (path: %v): %w", envPath, err)
	}

	cfg := &AppConfig{}
	cfg.AppName = getEnvAsString("APP_NAME", "tasklist")

	cfg.HTTP.Port = getEnvAsString("PORT", "8080")
	if p, err := strconv.Atoi(cfg.HTTP.Port); err != nil || p <= 0 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", cfg.HTTP.Port)
	}
	cfg.HTTP.AllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"})
	cfg.HTTP.SessionHeader = getEnvAsString("SESSION_HEADER", "X-Session-ID")

	cfg.Log.Level = getEnvAsString("LOG_LEVEL", "info")
	cfg.Log.JSON = strings.EqualFold(getEnvAsString("LOG_FORMAT", "text"), "json")
	cfg.Log.Color = getEnvAsBool("LOG_COLOR", true)

	cfg.Sessions.IdleTimeout = getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	cfg.Sessions.StreamBuffer = getEnvAsInt("SSE_BUFFER", 16)

	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	cfg.Telegram.Debug = getEnvAsBool("TELEGRAM_DEBUG", false)

	cfg.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", true)

	return cfg, nil
}

// Addr - адрес для http.Server
func (c *AppConfig) Addr() string {
	return ":" + c.HTTP.Port
}

// RequireTelegram проверяет настройки, нужные только боту
func (c *AppConfig) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration понимает и "90s", и просто число секунд.
// Отрицательные значения не принимаются, 0 допустим.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	d, err := time.ParseDuration(valStr)
	if err != nil {
		secs, atoiErr := strconv.Atoi(valStr)
		if atoiErr != nil {
			log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as duration: %v. Using default value: %s\n", key, valStr, err, defaultValue)
			return defaultValue
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		log.Printf("Warning: Environment variable %s (value: %s) must not be negative. Using default value: %s\n", key, valStr, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvAsList(key string, defaultValue []string) []string {
	valStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
