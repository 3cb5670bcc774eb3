package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config representa la configuración del servicio
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	API      APIConfig
	Queue    QueueConfig
	Stats    StatsConfig
	Storage  StorageConfig
	Logging  LoggingConfig
}

// ServerConfig representa la configuración del servidor HTTP
type ServerConfig struct {
	Port string
	Host string
	Env  string
}

// DatabaseConfig representa la configuración de la base de datos SQLite
type DatabaseConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// APIConfig representa la configuración de la API remota de facturación
type APIConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// QueueConfig representa la configuración de la cola de envíos offline
type QueueConfig struct {
	MaxRetries    int
	DrainLimit    int
	DrainInterval time.Duration
}

// StatsConfig representa la configuración del cache de estadísticas
type StatsConfig struct {
	CacheTTL time.Duration
}

// StorageConfig representa la configuración de almacenamiento local
type StorageConfig struct {
	PDFDir string
}

// LoggingConfig representa la configuración de logging
type LoggingConfig struct {
	Level  string
	Format string
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	// Cargar archivo .env si existe
	if err := godotenv.Load(); err != nil {
		// No es crítico si no existe el archivo .env
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "127.0.0.1"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Path:        getEnv("DB_PATH", "./factunabo_history.db"),
			BusyTimeout: getEnvAsDuration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		API: APIConfig{
			URL:     getEnv("INVOICING_API_URL", ""),
			Token:   getEnv("INVOICING_API_TOKEN", ""),
			Timeout: getEnvAsDuration("INVOICING_API_TIMEOUT", 30*time.Second),
		},
		Queue: QueueConfig{
			MaxRetries:    getEnvAsInt("QUEUE_MAX_RETRIES", 3),
			DrainLimit:    getEnvAsInt("QUEUE_DRAIN_LIMIT", 50),
			DrainInterval: getEnvAsDuration("QUEUE_DRAIN_INTERVAL", 5*time.Minute),
		},
		Stats: StatsConfig{
			CacheTTL: getEnvAsDuration("STATS_CACHE_TTL", 2*time.Second),
		},
		Storage: StorageConfig{
			PDFDir: getEnv("PDF_DEST_DIR", "./pdfs"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return config, nil
}

// getEnv obtiene una variable de entorno o retorna un valor por defecto
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt obtiene una variable de entorno como entero
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration obtiene una variable de entorno como duración
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// IsDevelopment retorna true si el entorno es de desarrollo
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction retorna true si el entorno es de producción
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetDSN retorna la cadena de conexión a SQLite
func (c *Config) GetDSN() string {
	return "file:" + c.Database.Path +
		"?_busy_timeout=" + strconv.Itoa(int(c.Database.BusyTimeout.Milliseconds())) +
		"&_journal_mode=WAL&_foreign_keys=on"
}
