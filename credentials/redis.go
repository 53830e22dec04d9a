package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "twill:credential:"

// RedisStore keeps one JSON document per LMS user under twill:credential:<id>.
// Keys carry no TTL.
type RedisStore struct {
	client redis.UniversalClient
	cipher *Cipher
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)

type redisRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DialRedis connects to redisURL and verifies the connection.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client, nil
}

// OpenRedisStore connects to redisURL and returns a store on the new client.
func OpenRedisStore(ctx context.Context, redisURL string, cipher *Cipher) (*RedisStore, error) {
	client, err := DialRedis(ctx, redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(client, cipher), nil
}

func NewRedisStore(client redis.UniversalClient, cipher *Cipher) *RedisStore {
	return &RedisStore{client: client, cipher: cipher}
}

func (s *RedisStore) KeyedBy() Keying {
	return KeyedByUser
}

func (s *RedisStore) Load(ctx context.Context, identity string) (*Credential, error) {
	val, err := s.client.Get(ctx, RedisKey(identity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrCredentialNotFound
		}
		return nil, apperrors.Wrapf(err, "loading credential")
	}
	return decodeRecord(identity, []byte(val), s.cipher)
}

func (s *RedisStore) Save(ctx context.Context, identity string, cred *Credential) error {
	if cred == nil {
		return errors.New("credential cannot be nil")
	}
	payload, err := encodeRecord(cred, s.cipher, time.Now())
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, RedisKey(identity), payload, 0).Err(); err != nil {
		return apperrors.Wrapf(err, "saving credential")
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// RedisKey is the key a user's credential is stored under.
func RedisKey(identity string) string {
	return redisKeyPrefix + identity
}

func encodeRecord(cred *Credential, cipher *Cipher, now time.Time) ([]byte, error) {
	accessToken, err := cipher.Seal(cred.AccessToken)
	if err != nil {
		return nil, apperrors.Wrapf(err, "sealing access token")
	}
	refreshToken, err := cipher.Seal(cred.RefreshToken)
	if err != nil {
		return nil, apperrors.Wrapf(err, "sealing refresh token")
	}
	return json.Marshal(redisRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    cred.ExpiresAt.UTC(),
		UpdatedAt:    now.UTC(),
	})
}

func decodeRecord(identity string, payload []byte, cipher *Cipher) (*Credential, error) {
	var rec redisRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, apperrors.Wrapf(err, "decoding credential")
	}
	accessToken, err := cipher.Open(rec.AccessToken)
	if err != nil {
		return nil, apperrors.Wrapf(err, "unsealing access token")
	}
	refreshToken, err := cipher.Open(rec.RefreshToken)
	if err != nil {
		return nil, apperrors.Wrapf(err, "unsealing refresh token")
	}
	return &Credential{
		ExternalUserID: identity,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      rec.ExpiresAt,
	}, nil
}
