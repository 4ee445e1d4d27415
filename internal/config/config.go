package config

import (
	"flag"
	"fmt"
	"time"
)

type Config struct {
	DBDriver                string
	DBUser                  string
	DBPassword              string
	DBName                  string
	DBHost                  string
	DBPort                  string
	DBPath                  string
	RESTPort                int
	AuthToken               string
	EventEmitterBufferLimit int
	MaxStreamClients        int
	StreamClientBuffer      int
	LedgerRetain            int64
	CleanupInterval         time.Duration
}

func New() *Config {
	restPort := flag.Int("rest-port", 8080, "The REST server port")
	flag.Parse()

	return &Config{
		DBDriver:                envOr("DB_DRIVER", "sqlite"),
		DBUser:                  envOr("DB_USER", "root"),
		DBPassword:              envOr("DB_PASSWORD", "root"),
		DBName:                  envOr("DB_NAME", "eventsource"),
		DBHost:                  envOr("DB_HOST", "localhost"),
		DBPort:                  envOr("DB_PORT", defaultDBPort(envOr("DB_DRIVER", "sqlite"))),
		DBPath:                  envOr("DB_PATH", "eventsource.db"),
		RESTPort:                *restPort,
		AuthToken:               envOr("AUTH_TOKEN", ""), // Empty token means no authentication required
		EventEmitterBufferLimit: envInt("EVENT_EMITTER_BUFFER", 64),
		MaxStreamClients:        envInt("MAX_STREAM_CLIENTS", 100),
		StreamClientBuffer:      envInt("STREAM_CLIENT_BUFFER", 16),
		LedgerRetain:            int64(envInt("LEDGER_RETAIN", 100000)),
		CleanupInterval:         envDuration("CLEANUP_INTERVAL", 6*time.Hour),
	}
}

// GetDBURI returns the driver-specific DSN.
func (c *Config) GetDBURI() string {
	switch c.DBDriver {
	case "mysql":
		// multiStatements is required for the startup schema.
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	default:
		return c.DBPath
	}
}

func defaultDBPort(driver string) string {
	if driver == "postgres" {
		return "5432"
	}
	return "3306"
}
