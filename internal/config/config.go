// Пакет config — загрузка и валидация конфигурации ResearchWeb
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации ResearchWeb.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения HTTP-запроса
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-ответа
	HTTPWriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT / Identity Provider ---

	// URL JWKS endpoint IdP
	JWTJWKSURL string
	// Ожидаемый issuer JWT (опционально)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Группы IdP, дающие роль admin (через запятую)
	RoleAdminGroups []string

	// --- Attachment Store ---

	// Директория хранения PDF-вложений
	AttachmentDir string
	// Максимальный размер загружаемого PDF в байтах
	MaxUploadBytes int64

	// --- Статистика ---

	// Максимальное количество записей в кэше статистики
	StatsCacheSize int
	// TTL записи кэша статистики
	StatsCacheTTL time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RW_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("RW_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("RW_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RW_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// RW_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RW_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RW_LOG_LEVEL: %w", err)
	}

	// RW_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RW_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RW_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// RW_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("RW_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RW_HTTP_READ_TIMEOUT: %w", err)
	}

	// RW_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 60s,
	// с запасом на отдачу PDF-вложений)
	cfg.HTTPWriteTimeout, err = getEnvDuration("RW_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RW_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// RW_HTTP_IDLE_TIMEOUT — таймаут keep-alive (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("RW_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RW_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// RW_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("RW_DB_HOST")
	if err != nil {
		return nil, err
	}

	// RW_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("RW_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RW_DB_PORT: %w", err)
	}

	// RW_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("RW_DB_NAME")
	if err != nil {
		return nil, err
	}

	// RW_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("RW_DB_USER")
	if err != nil {
		return nil, err
	}

	// RW_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("RW_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// RW_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("RW_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RW_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- JWT / Identity Provider ---

	// RW_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("RW_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// RW_JWT_ISSUER — ожидаемый issuer (опционально)
	cfg.JWTIssuer = getEnvDefault("RW_JWT_ISSUER", "")

	// RW_JWT_LEEWAY — допуск времени при валидации JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("RW_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RW_JWT_LEEWAY: %w", err)
	}

	// RW_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("RW_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RW_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// RW_ROLE_ADMIN_GROUPS — группы для роли admin (по умолчанию "researchweb-admins")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("RW_ROLE_ADMIN_GROUPS", "researchweb-admins"))

	// --- Attachment Store ---

	// RW_ATTACHMENT_DIR — директория вложений (по умолчанию ./uploads)
	cfg.AttachmentDir = getEnvDefault("RW_ATTACHMENT_DIR", "./uploads")

	// RW_MAX_UPLOAD_BYTES — лимит размера PDF (по умолчанию 32 MiB)
	maxUpload, err := getEnvInt("RW_MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("RW_MAX_UPLOAD_BYTES: %w", err)
	}
	if maxUpload < 1 {
		return nil, fmt.Errorf("RW_MAX_UPLOAD_BYTES: значение должно быть положительным")
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	// --- Статистика ---

	// RW_STATS_CACHE_SIZE — размер LRU-кэша статистики (по умолчанию 256)
	cfg.StatsCacheSize, err = getEnvInt("RW_STATS_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("RW_STATS_CACHE_SIZE: %w", err)
	}
	if cfg.StatsCacheSize < 1 {
		return nil, fmt.Errorf("RW_STATS_CACHE_SIZE: значение должно быть положительным")
	}

	// RW_STATS_CACHE_TTL — TTL кэша статистики (по умолчанию 30s)
	cfg.StatsCacheTTL, err = getEnvDuration("RW_STATS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RW_STATS_CACHE_TTL: %w", err)
	}

	// --- Graceful shutdown ---

	// RW_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("RW_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RW_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
