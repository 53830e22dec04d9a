package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/twill/internal/errors"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PoolSettings bounds the Postgres connection pool.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore keeps credentials in the oauth_credentials table, one row per LMS user.
type PostgresStore struct {
	db      *sql.DB
	cipher  *Cipher
	nowTime func() time.Time
}

var (
	_ Store  = (*PostgresStore)(nil)
	_ Pinger = (*PostgresStore)(nil)
)

type PostgresOption func(*PostgresStore)

// WithCipher seals access and refresh tokens before they are written
func WithCipher(c *Cipher) PostgresOption {
	return func(s *PostgresStore) {
		s.cipher = c
	}
}

func WithNowTime(nowTime func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		s.nowTime = nowTime
	}
}

// OpenPostgresStore connects to connectionString, verifies the connection and
// creates the schema when missing.
func OpenPostgresStore(ctx context.Context, connectionString string, pool PoolSettings, options ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	log.Info().Msg("Connected to PostgreSQL credential store")

	store, err := NewPostgresStore(ctx, db, options...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open database handle and creates the schema when missing.
func NewPostgresStore(ctx context.Context, db *sql.DB, options ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		db:      db,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS oauth_credentials (
		external_user_id VARCHAR(255) PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) KeyedBy() Keying {
	return KeyedByUser
}

// Load reads and unseals the credential for an LMS user
func (s *PostgresStore) Load(ctx context.Context, identity string) (*Credential, error) {
	var accessToken, refreshToken string
	var expiresAt time.Time

	query := `
		SELECT access_token, refresh_token, expires_at
		FROM oauth_credentials
		WHERE external_user_id = $1
	`

	err := s.db.QueryRowContext(ctx, query, identity).Scan(&accessToken, &refreshToken, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrCredentialNotFound
		}
		return nil, apperrors.Wrapf(err, "loading credential")
	}

	if accessToken, err = s.cipher.Open(accessToken); err != nil {
		return nil, apperrors.Wrapf(err, "unsealing access token")
	}
	if refreshToken, err = s.cipher.Open(refreshToken); err != nil {
		return nil, apperrors.Wrapf(err, "unsealing refresh token")
	}

	return &Credential{
		ExternalUserID: identity,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      expiresAt,
	}, nil
}

// Save seals and upserts the credential for an LMS user
func (s *PostgresStore) Save(ctx context.Context, identity string, cred *Credential) error {
	if cred == nil {
		return errors.New("credential cannot be nil")
	}

	accessToken, err := s.cipher.Seal(cred.AccessToken)
	if err != nil {
		return apperrors.Wrapf(err, "sealing access token")
	}
	refreshToken, err := s.cipher.Seal(cred.RefreshToken)
	if err != nil {
		return apperrors.Wrapf(err, "sealing refresh token")
	}

	query := `
		INSERT INTO oauth_credentials
			(external_user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (external_user_id)
		DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query, identity, accessToken, refreshToken, cred.ExpiresAt.UTC(), s.nowTime().UTC())
	if err != nil {
		return apperrors.Wrapf(err, "saving credential")
	}
	return nil
}

// Ping tests the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
