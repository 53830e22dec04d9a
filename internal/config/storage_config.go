package config

import "time"

const (
	credentialStoreVar = "CREDENTIAL_STORE"
	databaseURLVar     = "DATABASE_URL"
	redisURLVar        = "REDIS_URL"
	encryptionKeyVar   = "CREDENTIAL_ENCRYPTION_KEY"
)

// Credential store variants
const (
	StoreSession  = "session"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type StorageConfig interface {
	GetCredentialStore() string
	GetDatabaseURL() string
	GetRedisURL() string
	GetCredentialEncryptionKey() string
	GetDBMaxOpenConns() int
	GetDBMaxIdleConns() int
	GetDBConnMaxLifetime() time.Duration
}

type Storage struct {
	src *source
}

var _ StorageConfig = Storage{}

// GetCredentialStore selects where OAuth credentials live: session, memory, postgres or redis
func (s Storage) GetCredentialStore() string {
	return s.src.get(credentialStoreVar, StoreSession)
}

func (s Storage) GetDatabaseURL() string {
	return s.src.get(databaseURLVar, "")
}

func (s Storage) GetRedisURL() string {
	return s.src.get(redisURLVar, "")
}

func (s Storage) GetCredentialEncryptionKey() string {
	return s.src.get(encryptionKeyVar, "")
}

func (s Storage) GetDBMaxOpenConns() int {
	return s.src.int("DB_MAX_OPEN_CONNS", 5)
}

func (s Storage) GetDBMaxIdleConns() int {
	return s.src.int("DB_MAX_IDLE_CONNS", 2)
}

func (s Storage) GetDBConnMaxLifetime() time.Duration {
	return s.src.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
}
