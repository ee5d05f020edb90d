package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Logging
	LogLevel string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP. An empty URL disables commit events entirely.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	GoogleUsersSheet      string
	GoogleReferenceSheet  string
	GoogleAuditSheet      string
	GoogleSummarySheet    string
	GoogleTemplateSheet   string

	// Conversation
	Timezone     string
	SessionTTL   time.Duration
	SessionSweep time.Duration

	// Reads
	CatalogTTL        time.Duration
	SummaryCacheTTL   time.Duration
	SummaryCacheSize  int
	ReadRetryAttempts int
	ReadRetryBackoff  time.Duration

	// Summary worker
	SummaryRefresh time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/advancebot.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "advancebot"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "advancebot.commits"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		GoogleUsersSheet:      getEnv("GOOGLE_USERS_SHEET", "Users"),
		GoogleReferenceSheet:  getEnv("GOOGLE_REFERENCE_SHEET", "Reference"),
		GoogleAuditSheet:      getEnv("GOOGLE_AUDIT_SHEET", "Audit"),
		GoogleSummarySheet:    getEnv("GOOGLE_SUMMARY_SHEET", "Summary"),
		GoogleTemplateSheet:   getEnv("GOOGLE_TEMPLATE_SHEET", "Employee_Template"),

		Timezone:     getEnv("TIMEZONE", "UTC"),
		SessionTTL:   getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionSweep: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),

		CatalogTTL:        getEnvDuration("CATALOG_TTL", 30*time.Second),
		SummaryCacheTTL:   getEnvDuration("SUMMARY_CACHE_TTL", 30*time.Second),
		SummaryCacheSize:  getEnvInt("SUMMARY_CACHE_SIZE", 256),
		ReadRetryAttempts: getEnvInt("READ_RETRY_ATTEMPTS", 3),
		ReadRetryBackoff:  getEnvDuration("READ_RETRY_BACKOFF", 250*time.Millisecond),

		SummaryRefresh: getEnvDuration("SUMMARY_REFRESH_INTERVAL", 10*time.Minute),
	}

	return cfg
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if c.LogLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Validate data backend
	validBackends := []string{"memory", "sheets", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}

		hasCredFile := c.GoogleCredentialsFile != ""
		hasCredJSON := c.GoogleCredentialsJSON != ""
		if !hasCredFile && !hasCredJSON {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets backend")
		}
		if hasCredFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}

		for name, value := range map[string]string{
			"GOOGLE_USERS_SHEET":     c.GoogleUsersSheet,
			"GOOGLE_REFERENCE_SHEET": c.GoogleReferenceSheet,
			"GOOGLE_AUDIT_SHEET":     c.GoogleAuditSheet,
			"GOOGLE_SUMMARY_SHEET":   c.GoogleSummarySheet,
			"GOOGLE_TEMPLATE_SHEET":  c.GoogleTemplateSheet,
		} {
			if value == "" {
				errors = append(errors, fmt.Sprintf("%s cannot be empty when using sheets backend", name))
			}
		}
	}

	// Validate timezone
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	// Validate session configuration
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 24 hours", c.SessionTTL))
	}
	if c.SessionSweep < time.Second {
		errors = append(errors, fmt.Sprintf("invalid session sweep interval %v: must be at least 1 second", c.SessionSweep))
	} else if c.SessionSweep > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session sweep interval %v: must be at most 1 hour", c.SessionSweep))
	}

	// Validate cache configuration
	if c.CatalogTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid catalog TTL %v: must be at least 1 second", c.CatalogTTL))
	} else if c.CatalogTTL > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid catalog TTL %v: must be at most 1 hour", c.CatalogTTL))
	}
	if c.SummaryCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must be at least 1 second", c.SummaryCacheTTL))
	} else if c.SummaryCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must be at most 24 hours", c.SummaryCacheTTL))
	}
	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	} else if c.SummaryCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at most 100000", c.SummaryCacheSize))
	}

	// Validate read retry configuration
	if c.ReadRetryAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid read retry attempts %d: must be at least 1", c.ReadRetryAttempts))
	} else if c.ReadRetryAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid read retry attempts %d: must be at most 10", c.ReadRetryAttempts))
	}
	if c.ReadRetryBackoff < 10*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid read retry backoff %v: must be at least 10ms", c.ReadRetryBackoff))
	} else if c.ReadRetryBackoff > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid read retry backoff %v: must be at most 10 seconds", c.ReadRetryBackoff))
	}

	// Validate summary worker configuration
	if c.SummaryRefresh < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid summary refresh interval %v: must be at least 1 minute", c.SummaryRefresh))
	} else if c.SummaryRefresh > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid summary refresh interval %v: must be at most 24 hours", c.SummaryRefresh))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location resolves the configured timezone. Validate has already
// checked it, so failures fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
