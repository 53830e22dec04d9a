package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar  = "PORT"
	appNameVar  = "APP_NAME"
	envVar      = "ENV"
	baseURLVar  = "BASE_URL"
	logLevelVar = "LOG_LEVEL"
)

// source resolves a setting from the process environment first and the YAML overlay second.
type source struct {
	file map[string]string
}

func (s *source) get(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if s != nil {
		if value, ok := s.file[name]; ok && value != "" {
			return value
		}
	}
	return defaultValue
}

func (s *source) duration(name string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(s.get(name, "")); val != "" {
		if dur, err := time.ParseDuration(val); err == nil {
			return dur
		}
	}
	return fallback
}

func (s *source) int(name string, fallback int) int {
	if val := strings.TrimSpace(s.get(name, "")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func (s *source) list(name string) []string {
	var values []string
	for _, part := range strings.Split(s.get(name, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.src.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.src.get(appNameVar, "Twill")
}

func (e EnvVars) GetEnv() string {
	return e.src.get(envVar, "DEV")
}

// GetBaseURL returns the public base URL of the tool (e.g., "https://twill.example.com")
func (e EnvVars) GetBaseURL() string {
	return e.src.get(baseURLVar, "http://localhost:8080")
}

func (e EnvVars) GetLogLevel() string {
	return e.src.get(logLevelVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
