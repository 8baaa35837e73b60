// Package config provides configuration for the run console.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the console configuration.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int

	// Controller (run creation, control calls, event stream)
	ControllerURL   string
	EnvironmentName string
	ControlTimeout  time.Duration
	TraceLimit      int

	// Database
	DatabaseURL string

	// Console behaviour
	EventLogCapacity int
	NoticeTTL        time.Duration
	DefaultQuery     string

	// WebSocket settings
	APIKey         string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel string
	LogFile  string
}

// fileConfig mirrors Config for the optional YAML overlay. Zero values are
// treated as unset.
type fileConfig struct {
	HTTPPort         int    `yaml:"http_port"`
	RPCPort          int    `yaml:"rpc_port"`
	ControllerURL    string `yaml:"controller_url"`
	EnvironmentName  string `yaml:"environment"`
	ControlTimeoutMS int    `yaml:"control_timeout_ms"`
	TraceLimit       int    `yaml:"trace_limit"`
	DatabaseURL      string `yaml:"database_url"`
	EventLogCapacity int    `yaml:"event_log_capacity"`
	NoticeTTLMS      int    `yaml:"notice_ttl_ms"`
	DefaultQuery     string `yaml:"default_query"`
	APIKey           string `yaml:"api_key"`
	PingIntervalMS   int    `yaml:"ws_ping_interval_ms"`
	WriteTimeoutMS   int    `yaml:"ws_write_timeout_ms"`
	ReadTimeoutMS    int    `yaml:"ws_read_timeout_ms"`
	MaxMessageSize   int    `yaml:"ws_max_message_size"`
	LogLevel         string `yaml:"log_level"`
	LogFile          string `yaml:"log_file"`
}

func defaults() fileConfig {
	return fileConfig{
		HTTPPort:         8078,
		ControllerURL:    "http://localhost:8077",
		EnvironmentName:  "greatagent",
		ControlTimeoutMS: 30000,
		TraceLimit:       5,
		DatabaseURL:      "file:console.db?cache=shared&mode=rwc",
		EventLogCapacity: 160,
		NoticeTTLMS:      4000,
		DefaultQuery:     "Compare Llama-3.1 and GPT-4o for doc summarization.",
		PingIntervalMS:   30000,
		WriteTimeoutMS:   10000,
		ReadTimeoutMS:    60000,
		MaxMessageSize:   65536,
		LogLevel:         "info",
	}
}

// Load loads configuration. Values come from built-in defaults, then the YAML
// file named by CONSOLE_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	base := defaults()
	if path := os.Getenv("CONSOLE_CONFIG"); path != "" {
		if err := overlayFile(&base, path); err != nil {
			return nil, err
		}
	}

	controllerURL := getEnv("CONTROLLER_URL", getEnv("API_BASE", base.ControllerURL))

	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", base.HTTPPort),
		RPCPort:          getEnvInt("RPC_PORT", base.RPCPort),
		ControllerURL:    controllerURL,
		EnvironmentName:  getEnv("ENV_NAME", base.EnvironmentName),
		ControlTimeout:   time.Duration(getEnvInt("CONTROL_TIMEOUT_MS", base.ControlTimeoutMS)) * time.Millisecond,
		TraceLimit:       getEnvInt("TRACE_LIMIT", base.TraceLimit),
		DatabaseURL:      getEnv("DATABASE_URL", base.DatabaseURL),
		EventLogCapacity: getEnvInt("EVENT_LOG_CAPACITY", base.EventLogCapacity),
		NoticeTTL:        time.Duration(getEnvInt("NOTICE_TTL_MS", base.NoticeTTLMS)) * time.Millisecond,
		DefaultQuery:     getEnv("DEFAULT_QUERY", base.DefaultQuery),
		APIKey:           getEnv("API_KEY", base.APIKey),
		PingInterval:     time.Duration(getEnvInt("WS_PING_INTERVAL_MS", base.PingIntervalMS)) * time.Millisecond,
		WriteTimeout:     time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", base.WriteTimeoutMS)) * time.Millisecond,
		ReadTimeout:      time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", base.ReadTimeoutMS)) * time.Millisecond,
		MaxMessageSize:   int64(getEnvInt("WS_MAX_MESSAGE_SIZE", base.MaxMessageSize)),
		LogLevel:         getEnv("LOG_LEVEL", base.LogLevel),
		LogFile:          getEnv("LOG_FILE", base.LogFile),
	}
	if cfg.EventLogCapacity <= 0 {
		return nil, fmt.Errorf("event log capacity must be positive, got %d", cfg.EventLogCapacity)
	}
	return cfg, nil
}

func overlayFile(base *fileConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&base.ControllerURL, fc.ControllerURL)
	setString(&base.EnvironmentName, fc.EnvironmentName)
	setString(&base.DatabaseURL, fc.DatabaseURL)
	setString(&base.DefaultQuery, fc.DefaultQuery)
	setString(&base.APIKey, fc.APIKey)
	setString(&base.LogLevel, fc.LogLevel)
	setString(&base.LogFile, fc.LogFile)
	setInt(&base.HTTPPort, fc.HTTPPort)
	setInt(&base.RPCPort, fc.RPCPort)
	setInt(&base.ControlTimeoutMS, fc.ControlTimeoutMS)
	setInt(&base.TraceLimit, fc.TraceLimit)
	setInt(&base.EventLogCapacity, fc.EventLogCapacity)
	setInt(&base.NoticeTTLMS, fc.NoticeTTLMS)
	setInt(&base.PingIntervalMS, fc.PingIntervalMS)
	setInt(&base.WriteTimeoutMS, fc.WriteTimeoutMS)
	setInt(&base.ReadTimeoutMS, fc.ReadTimeoutMS)
	setInt(&base.MaxMessageSize, fc.MaxMessageSize)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
