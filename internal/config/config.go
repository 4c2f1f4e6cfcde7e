// Пакет config — загрузка и валидация конфигурации Roster Module
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

// Config содержит все параметры конфигурации Roster Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Удалённый реестр ---

	// Базовый URL реестра избирателей (обязательный)
	RegistryURL string
	// Таймаут HTTP-запросов к реестру (по умолчанию 30s)
	RegistryTimeout time.Duration
	// Путь к CA-сертификату для TLS к реестру (опционально)
	RegistryCACertPath string
	// Probe path реестра для мониторинга зависимостей (по умолчанию /)
	RegistryHealthPath string

	// --- Синхронизация ---

	// Размер страницы реестра (по умолчанию 1000)
	PageSize int
	// Количество параллельных запросов в пакете (по умолчанию 3)
	BatchSize int
	// Пауза между пакетами (по умолчанию 200ms)
	BatchPause time.Duration
	// Полная дедупликация каждые N принятых страниц (по умолчанию 5)
	FullDedupEvery int
	// Пауза перед автоматическим повтором первой страницы (по умолчанию 5s)
	RetryBackoff time.Duration

	// --- Локальная реплика ---

	// Путь к файлу локальной реплики (по умолчанию ./data/roster.db)
	CachePath string
	// Срок годности реплики (по умолчанию 24h)
	CacheTTL time.Duration
	// Потолок количества кэшируемых записей (по умолчанию 10000)
	CacheMaxRecords int
	// Бюджет хранилища реплики в байтах (по умолчанию 8 МиБ)
	CacheMaxBytes int64
	// Порог chunked-раскладки payload в байтах (по умолчанию 1 МиБ)
	CacheChunkSize int

	// --- Поиск ---

	// Размер LRU-кэша результатов запросов (по умолчанию 50)
	QueryCacheSize int
	// Верхняя граница совпадений одного запроса (по умолчанию 5000)
	SearchResultLimit int

	// --- JWT / JWKS (аутентификация включается заданием RM_JWKS_URL) ---

	// URL JWKS endpoint IdP; пустой — аутентификация выключена
	JWKSURL string
	// Путь к CA-сертификату для TLS к IdP (опционально)
	JWKSCACertPath string
	// Ожидаемый issuer JWT (опционально)
	JWTIssuer string
	// Группы IdP, маппящиеся в роль admin
	AdminGroups []string
	// Группы IdP, маппящиеся в роль readonly
	ReadonlyGroups []string
	// Таймаут HTTP-клиента JWKS (по умолчанию 10s)
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей (по умолчанию 1h)
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT (по умолчанию 30s)
	JWTLeeway time.Duration

	// --- Dephealth (мониторинг зависимостей) ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей (по умолчанию 30s)
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для entry-point сервисов
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("RM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}

	// RM_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("RM_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	// RM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("RM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("RM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("RM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// RM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Удалённый реестр ---

	// RM_REGISTRY_URL — базовый URL реестра (обязательный)
	cfg.RegistryURL, err = getEnvRequired("RM_REGISTRY_URL")
	if err != nil {
		return nil, err
	}

	cfg.RegistryTimeout, err = getEnvDuration("RM_REGISTRY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_REGISTRY_TIMEOUT: %w", err)
	}
	cfg.RegistryCACertPath = getEnvDefault("RM_REGISTRY_CA_CERT_PATH", "")
	cfg.RegistryHealthPath = getEnvDefault("RM_REGISTRY_HEALTH_PATH", "/")

	// --- Синхронизация ---

	cfg.PageSize, err = getEnvInt("RM_PAGE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("RM_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("RM_PAGE_SIZE: значение должно быть >= 1")
	}
	cfg.BatchSize, err = getEnvInt("RM_BATCH_SIZE", 3)
	if err != nil {
		return nil, fmt.Errorf("RM_BATCH_SIZE: %w", err)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("RM_BATCH_SIZE: значение должно быть >= 1")
	}
	cfg.BatchPause, err = getEnvDuration("RM_BATCH_PAUSE", 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("RM_BATCH_PAUSE: %w", err)
	}
	cfg.FullDedupEvery, err = getEnvInt("RM_FULL_DEDUP_EVERY", 5)
	if err != nil {
		return nil, fmt.Errorf("RM_FULL_DEDUP_EVERY: %w", err)
	}
	cfg.RetryBackoff, err = getEnvDuration("RM_RETRY_BACKOFF", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_RETRY_BACKOFF: %w", err)
	}

	// --- Локальная реплика ---

	cfg.CachePath = getEnvDefault("RM_CACHE_PATH", "./data/roster.db")
	cfg.CacheTTL, err = getEnvDuration("RM_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RM_CACHE_TTL: %w", err)
	}
	cfg.CacheMaxRecords, err = getEnvInt("RM_CACHE_MAX_RECORDS", 10000)
	if err != nil {
		return nil, fmt.Errorf("RM_CACHE_MAX_RECORDS: %w", err)
	}
	maxBytes, err := getEnvInt("RM_CACHE_MAX_BYTES", 8<<20)
	if err != nil {
		return nil, fmt.Errorf("RM_CACHE_MAX_BYTES: %w", err)
	}
	cfg.CacheMaxBytes = int64(maxBytes)
	cfg.CacheChunkSize, err = getEnvInt("RM_CACHE_CHUNK_SIZE", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("RM_CACHE_CHUNK_SIZE: %w", err)
	}

	// --- Поиск ---

	cfg.QueryCacheSize, err = getEnvInt("RM_QUERY_CACHE_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("RM_QUERY_CACHE_SIZE: %w", err)
	}
	cfg.SearchResultLimit, err = getEnvInt("RM_SEARCH_RESULT_LIMIT", 5000)
	if err != nil {
		return nil, fmt.Errorf("RM_SEARCH_RESULT_LIMIT: %w", err)
	}

	// --- JWT / JWKS ---

	cfg.JWKSURL = getEnvDefault("RM_JWKS_URL", "")
	cfg.JWKSCACertPath = getEnvDefault("RM_JWKS_CA_CERT_PATH", "")
	cfg.JWTIssuer = getEnvDefault("RM_JWT_ISSUER", "")
	cfg.AdminGroups = splitGroups(getEnvDefault("RM_ADMIN_GROUPS", ""))
	cfg.ReadonlyGroups = splitGroups(getEnvDefault("RM_READONLY_GROUPS", ""))
	cfg.JWKSClientTimeout, err = getEnvDuration("RM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("RM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "electoreg")
	cfg.DephealthCheckInterval, err = getEnvDuration("RM_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// AuthEnabled — включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSURL != ""
}

// splitGroups разбирает список групп из строки через запятую.
func splitGroups(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	groups := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.TrimSpace(p); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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
