package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/twill/internal/errors"
)

type Config interface {
	EnvConfig
	LTIConfig
	OAuthConfig
	StorageConfig
	SessionConfig
	CanvasConfig
	CorsConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type LTIConfig interface {
	GetLTIKey() string
	GetLTISecret() string
	GetLaunchMaxSkew() time.Duration
}

type CanvasConfig interface {
	GetCanvasHTTPTimeout() time.Duration
	GetFetchConcurrency() int
	GetMaxPages() int
}

type mainConfig struct {
	EnvVars
	LTI
	OAuth
	Storage
	Session
	Canvas
	Cors
}

// New returns a Config that reads process environment variables.
func New() Config {
	return newMainConfig(&source{})
}

// NewFromFile returns a Config that reads process environment variables and falls back
// to the values in the YAML overlay at path.
func NewFromFile(path string) (Config, error) {
	src, err := loadYAMLSource(path)
	if err != nil {
		return nil, err
	}
	return newMainConfig(src), nil
}

func newMainConfig(src *source) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{src: src},
		LTI:     LTI{src: src},
		OAuth:   OAuth{src: src},
		Storage: Storage{src: src},
		Session: Session{src: src},
		Canvas:  Canvas{src: src},
		Cors:    Cors{src: src},
	}
}

// Validate reports every required setting that is missing.
func (c mainConfig) Validate() error {
	var missing []string
	required := map[string]string{
		ltiKeyVar:        c.GetLTIKey(),
		ltiSecretVar:     c.GetLTISecret(),
		clientIDVar:      c.GetClientID(),
		clientSecretVar:  c.GetClientSecret(),
		tokenHostVar:     c.GetTokenHost(),
		redirectURIVar:   c.GetRedirectURI(),
		authorizePathVar: c.GetAuthorizePath(),
		tokenPathVar:     c.GetTokenPath(),
	}
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.GetCredentialStore() {
	case StoreSession, StoreMemory:
	case StorePostgres:
		if c.GetDatabaseURL() == "" {
			missing = append(missing, databaseURLVar)
		}
	case StoreRedis:
		if c.GetRedisURL() == "" {
			missing = append(missing, redisURLVar)
		}
	default:
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "unknown %s %q", credentialStoreVar, c.GetCredentialStore())
	}

	if c.GetEnv() != "DEV" && len(c.settings().get(sessionKeysVar, "")) == 0 {
		missing = append(missing, sessionKeysVar)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", apperrors.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

func (c mainConfig) settings() *source {
	return c.EnvVars.src
}
