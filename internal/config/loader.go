package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadEnv pulls secrets from AWS Secrets Manager (if configured) and then loads
// a local .env file. Values already present in the environment win.
func LoadEnv(ctx context.Context, defaultEnvPath string) {
	if err := loadAWSSecretsIntoEnv(ctx); err != nil {
		log.Warn().Err(err).Msg("Skipping AWS Secrets Manager load")
	}
	loadDotEnv(defaultEnvPath)
}

func loadDotEnv(defaultEnvPath string) {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = defaultEnvPath
	}

	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// env is injected directly when running in a container
			if os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
				log.Debug().Str("path", envFile).Msg(".env file not found, using system environment")
			}
		}
	}
}

func loadAWSSecretsIntoEnv(ctx context.Context) error {
	secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")
	if secretID == "" {
		return nil
	}

	versionStage := os.Getenv("AWS_SECRETS_MANAGER_VERSION_STAGE")
	if versionStage == "" {
		versionStage = "AWSCURRENT"
	}
	overwrite := strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true")

	cfg, err := loadAWSConfig(ctx, os.Getenv("AWS_SECRETS_MANAGER_REGION"))
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(versionStage),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload string
	switch {
	case output.SecretString != nil:
		payload = *output.SecretString
	case len(output.SecretBinary) > 0:
		payload = string(output.SecretBinary)
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	applied, err := applySecretPayload(payload, overwrite)
	if err != nil {
		return fmt.Errorf("secret %s: %w", secretID, err)
	}
	log.Info().Str("secret_id", secretID).Int("applied", applied).Msg("Loaded env vars from AWS Secrets Manager")
	return nil
}

// applySecretPayload copies a flat JSON object into the process environment.
func applySecretPayload(payload string, overwrite bool) (int, error) {
	var kv map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("parsing secret as JSON: %w", err)
	}

	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s from secret: %w", key, err)
		}
		applied++
	}
	return applied, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}

// loadYAMLSource reads a flat YAML mapping of setting names to values, e.g.
//
//	CANVAS_HTTP_TIMEOUT: 20s
//	FETCH_CONCURRENCY: 4
func loadYAMLSource(path string) (*source, error) {
	if path == "" {
		return &source{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	file := make(map[string]string, len(raw))
	for key, val := range raw {
		if val == nil {
			continue
		}
		file[key] = fmt.Sprint(val)
	}
	return &source{file: file}, nil
}
