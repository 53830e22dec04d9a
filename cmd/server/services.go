package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/twill/canvas"
	"github.com/jrsteele09/twill/credentials"
	"github.com/jrsteele09/twill/discussion"
	"github.com/jrsteele09/twill/internal/config"
	"github.com/jrsteele09/twill/lifecycle"
	"github.com/jrsteele09/twill/lti"
	"github.com/jrsteele09/twill/server"
	"github.com/jrsteele09/twill/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// newServices wires the collaborators the server needs. The returned func
// releases any connections opened here.
func newServices(ctx context.Context, c config.Config) (server.Services, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Err(err).Msg("Failed to close connection")
			}
		}
	}

	var redisClient *redis.Client
	if url := c.GetRedisURL(); url != "" {
		client, err := credentials.DialRedis(ctx, url)
		if err != nil {
			return server.Services{}, closeAll, err
		}
		redisClient = client
		closers = append(closers, client.Close)
	}

	store, closeStore, err := newCredentialStore(ctx, c, redisClient)
	if err != nil {
		closeAll()
		return server.Services{}, func() {}, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	var nonces lti.NonceStore = lti.NewMemoryNonceStore(time.Now)
	if redisClient != nil {
		nonces = lti.NewRedisNonceStore(redisClient)
	}

	sessions, err := session.NewManager(c.GetSessionKeys(),
		session.WithCookieName(c.GetSessionCookieName()),
		session.WithMaxAge(c.GetSessionMaxAge()),
	)
	if err != nil {
		closeAll()
		return server.Services{}, func() {}, err
	}

	canvasClient := canvas.NewClient(
		canvas.WithTimeout(c.GetCanvasHTTPTimeout()),
		canvas.WithMaxPages(c.GetMaxPages()),
	)

	oauthConfig := lifecycle.OAuth2Config(
		c.GetClientID(), c.GetClientSecret(),
		c.GetTokenHost(), c.GetAuthorizePath(), c.GetTokenPath(),
		c.GetRedirectURI(),
	)

	log.Info().
		Str("credential_store", c.GetCredentialStore()).
		Bool("redis_nonces", redisClient != nil).
		Msg("Services configured")

	return server.Services{
		Launches: lti.NewProvider(c.GetLTIKey(), c.GetLTISecret(),
			lti.WithNonceStore(nonces),
			lti.WithMaxSkew(c.GetLaunchMaxSkew()),
			lti.WithTrustProxy(true),
		),
		Sessions:    sessions,
		Lifecycle:   lifecycle.NewManager(store, oauthConfig, lifecycle.WithLookahead(c.GetTokenRefreshLookahead())),
		Canvas:      canvasClient,
		Discussions: discussion.NewAggregator(canvasClient, discussion.WithFetchLimit(c.GetFetchConcurrency())),
	}, closeAll, nil
}

func newCredentialStore(ctx context.Context, c config.Config, redisClient *redis.Client) (credentials.Store, func() error, error) {
	cipher := credentials.NewCipher(c.GetCredentialEncryptionKey())

	switch c.GetCredentialStore() {
	case config.StoreSession:
		return session.NewCredentialStore(cipher), nil, nil
	case config.StoreMemory:
		return credentials.NewMemoryStore(), nil, nil
	case config.StorePostgres:
		store, err := credentials.OpenPostgresStore(ctx, c.GetDatabaseURL(), credentials.PoolSettings{
			MaxOpenConns:    c.GetDBMaxOpenConns(),
			MaxIdleConns:    c.GetDBMaxIdleConns(),
			ConnMaxLifetime: c.GetDBConnMaxLifetime(),
		}, credentials.WithCipher(cipher))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("credential store %q needs REDIS_URL", config.StoreRedis)
		}
		return credentials.NewRedisStore(redisClient, cipher), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", c.GetCredentialStore())
	}
}
