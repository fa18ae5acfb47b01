package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Session store kinds.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type StoreConfig interface {
	GetStoreKind() string
	GetStoreFilePath() string
	GetStoreKey() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
	GetSQLitePath() string
	GetDatabaseURL() string
}

type Store struct {
	Kind          string `yaml:"kind" env:"STORE_KIND" env-default:"file" env-description:"memory, file, redis, sqlite or postgres"`
	FilePath      string `yaml:"file_path" env:"STORE_FILE" env-description:"session file, defaults to the user config directory"`
	Key           string `yaml:"key" env:"STORE_KEY" env-description:"hex encoded 32 byte key sealing the session file"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX" env-default:"identity-client:"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH" env-description:"session database, defaults to the user config directory"`
	DatabaseURL   string `yaml:"database_url" env:"DATABASE_URL" env-description:"PostgreSQL connection string"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreKind() string {
	return s.Kind
}

func (s Store) GetStoreFilePath() string {
	if s.FilePath != "" {
		return s.FilePath
	}
	return defaultDataPath("session.json")
}

func (s Store) GetStoreKey() string {
	return s.Key
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

func (s Store) GetRedisPrefix() string {
	return s.RedisPrefix
}

func (s Store) GetSQLitePath() string {
	if s.SQLitePath != "" {
		return s.SQLitePath
	}
	return defaultDataPath("session.db")
}

func (s Store) GetDatabaseURL() string {
	return s.DatabaseURL
}

func (s Store) validate() error {
	switch s.Kind {
	case StoreMemory, StoreFile, StoreSQLite:
	case StoreRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("store kind %q needs a redis address", s.Kind)
		}
	case StorePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("store kind %q needs a database url", s.Kind)
		}
	default:
		return fmt.Errorf("unknown store kind %q", s.Kind)
	}

	if s.Key != "" {
		if b, err := hex.DecodeString(s.Key); err != nil || len(b) != 32 {
			return fmt.Errorf("store key must be 64 hex characters")
		}
	}
	return nil
}

func defaultDataPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "identity-client", name)
}
