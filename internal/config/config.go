package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig содержит конфигурацию приложения
type AppConfig struct {
	ServerPort string
	GinMode    string
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Logging    LoggerConfig
	Controller ControllerConfig
	Tasks      TaskConfig
	Bus        BusConfig
}

// LoggerConfig содержит настройки логгера
type LoggerConfig struct {
	Enable     bool
	LogsDir    string
	Level      string
	SavingDays int
}

// DatabaseConfig содержит конфигурацию для подключения к базе данных.
// При Enable=false используется хранилище в памяти.
type DatabaseConfig struct {
	Enable   bool
	Host     string
	Port     string
	Username string
	Password string
	DBName   string
}

// KafkaConfig - зеркалирование событий шины в Kafka
type KafkaConfig struct {
	Enable bool
	Broker string
	Topic  string
}

// ControllerConfig - политики сессий с контроллерами
type ControllerConfig struct {
	ConnectTimeout time.Duration
	DefaultBaud    int
	DefaultDialect string
	HaltOnCancel   bool
	DrainTimeout   time.Duration
	CommandTimeout time.Duration
}

// TaskConfig - пул фоновых задач
type TaskConfig struct {
	Workers     int
	CancelGrace time.Duration
	ResultsDir  string // пусто - результаты только в памяти
}

// BusConfig - шина событий
type BusConfig struct {
	Retention   int
	ClientQueue int
}

// LoadConfiguration загружает конфигурацию из .env файла или переменных окружения
func LoadConfiguration() (*AppConfig, error) {
	_ = godotenv.Load()

	config := &AppConfig{
		ServerPort: getEnv("APP_PORT", "8082"),
		GinMode:    getEnv("GIN_MODE", "debug"),
		Database: DatabaseConfig{
			Enable:   getEnvAsBool("DB_ENABLE", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Username: getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "root"),
			DBName:   getEnv("DB_NAME", "cnc_db"),
		},
		Kafka: KafkaConfig{
			Enable: getEnvAsBool("KAFKA_ENABLE", false),
			Broker: getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:  getEnv("KAFKA_TOPIC", "cnc_events"),
		},
		Logging: LoggerConfig{
			Enable:     getEnvAsBool("LOGGER_ENABLE", true),
			LogsDir:    getEnv("LOGGER_LOGS_DIR", "./logs"),
			Level:      getEnv("LOGGER_LOG_LEVEL", "DEBUG"),
			SavingDays: getEnvAsInt("LOGGER_SAVING_DAYS", 7),
		},
		Controller: ControllerConfig{
			ConnectTimeout: getEnvAsMillis("CONTROLLER_CONNECT_TIMEOUT_MS", 5*time.Second),
			DefaultBaud:    getEnvAsInt("CONTROLLER_DEFAULT_BAUD", 115200),
			DefaultDialect: getEnv("CONTROLLER_DEFAULT_DIALECT", "grbl"),
			HaltOnCancel:   getEnvAsBool("CONTROLLER_HALT_ON_CANCEL", false),
			DrainTimeout:   getEnvAsMillis("CONTROLLER_DRAIN_TIMEOUT_MS", 30*time.Second),
			CommandTimeout: getEnvAsMillis("CONTROLLER_COMMAND_TIMEOUT_MS", 10*time.Second),
		},
		Tasks: TaskConfig{
			Workers:     getEnvAsInt("TASK_WORKERS", runtime.NumCPU()),
			CancelGrace: getEnvAsMillis("TASK_CANCEL_GRACE_MS", 5*time.Second),
			ResultsDir:  getEnv("RESULTS_DIR", ""),
		},
		Bus: BusConfig{
			Retention:   getEnvAsInt("BUS_RETENTION", 1024),
			ClientQueue: getEnvAsInt("BUS_CLIENT_QUEUE", 256),
		},
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return val
}

// getEnvAsMillis читает длительность, заданную в миллисекундах
func getEnvAsMillis(name string, defaultValue time.Duration) time.Duration {
	ms := getEnvAsInt(name, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
