package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Store    string
	Postgres PostgresConfig
	Redis    RedisConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type EngineConfig struct {
	// DefaultHourlyRate prices exits whose facility row is gone.
	DefaultHourlyRate int64
	// NoShowSweepInterval is how often expired reservations are reaped.
	NoShowSweepInterval time.Duration
	// ReservationHorizon caps how far ahead a window may start.
	ReservationHorizon time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	// STORE=memory runs the whole engine in process with no postgres or
	// redis, which is handy for local gate-flow testing.
	store := os.Getenv("STORE")
	if store == "" {
		store = StorePostgres
	}
	if store != StorePostgres && store != StoreMemory {
		return nil, fmt.Errorf("%s: invalid STORE %q", op, store)
	}

	var postgresCfg PostgresConfig
	if store == StorePostgres {
		postgresHost := os.Getenv("POSTGRES_HOST")
		if postgresHost == "" {
			postgresHost = "localhost"
		}

		postgresPortStr := os.Getenv("POSTGRES_PORT")
		if postgresPortStr == "" {
			postgresPortStr = "5432"
		}

		postgresPort, err := strconv.Atoi(postgresPortStr)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
		}

		postgresUser := os.Getenv("POSTGRES_USER")
		if postgresUser == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
		}

		postgresPassword := os.Getenv("POSTGRES_PASSWORD")
		if postgresPassword == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
		}

		postgresDB := os.Getenv("POSTGRES_DB")
		if postgresDB == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
		}

		postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
		if postgresSSLMode == "" {
			postgresSSLMode = "disable"
		}

		postgresCfg = PostgresConfig{
			User:     postgresUser,
			Password: postgresPassword,
			Name:     postgresDB,
			Host:     postgresHost,
			Port:     postgresPort,
			SSLMode:  postgresSSLMode,
		}
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}
	if redisCfg.Addr == "" && store == StorePostgres {
		redisCfg.Addr = "localhost:6379"
	}

	engineCfg := EngineConfig{
		DefaultHourlyRate:   100,
		NoShowSweepInterval: time.Minute,
		ReservationHorizon:  720 * time.Hour,
	}

	if v := os.Getenv("DEFAULT_HOURLY_RATE"); v != "" {
		rate, err := strconv.ParseInt(v, 10, 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("%s: invalid DEFAULT_HOURLY_RATE", op)
		}
		engineCfg.DefaultHourlyRate = rate
	}

	if v := os.Getenv("NOSHOW_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s: invalid NOSHOW_SWEEP_INTERVAL", op)
		}
		engineCfg.NoShowSweepInterval = d
	}

	if v := os.Getenv("RESERVATION_HORIZON"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s: invalid RESERVATION_HORIZON", op)
		}
		engineCfg.ReservationHorizon = d
	}

	return &Config{
		Server:   serverCfg,
		Store:    store,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Engine:   engineCfg,
	}, nil
}
