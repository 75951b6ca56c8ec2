// Package credentials resolves the Google Cloud credentials used by the Vision client.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"

	"github.com/example/activity-check/internal/config"
)

// Origin identifies where credential material was found.
type Origin string

const (
	OriginEnv  Origin = "env"
	OriginFile Origin = "file"
)

// ErrNoCredentials is returned when neither the environment variable nor the
// fallback file is configured.
var ErrNoCredentials = errors.New("no vision credentials configured")

// Source is immutable credential material resolved once at startup.
type Source struct {
	Origin Origin
	// EnvVar is set when Origin is OriginEnv.
	EnvVar string
	// Path is set when Origin is OriginFile.
	Path string

	json []byte
}

// Resolve prefers raw credential JSON from the configured environment variable
// and falls back to the configured file path. The file is not opened here; a
// missing or unreadable file surfaces when the Vision client is constructed.
func Resolve(cfg config.VisionConfig) (*Source, error) {
	return resolve(cfg, os.LookupEnv)
}

func resolve(cfg config.VisionConfig, lookup func(string) (string, bool)) (*Source, error) {
	if cfg.CredentialsEnv != "" {
		if raw, ok := lookup(cfg.CredentialsEnv); ok && strings.TrimSpace(raw) != "" {
			data := []byte(raw)
			if !json.Valid(data) {
				return nil, fmt.Errorf("%s does not contain valid credential JSON", cfg.CredentialsEnv)
			}
			return &Source{Origin: OriginEnv, EnvVar: cfg.CredentialsEnv, json: data}, nil
		}
	}

	if cfg.CredentialsFile == "" {
		return nil, ErrNoCredentials
	}
	return &Source{Origin: OriginFile, Path: cfg.CredentialsFile}, nil
}

// ClientOptions returns the options that hand the credentials to a Google API client.
func (s *Source) ClientOptions() []option.ClientOption {
	switch s.Origin {
	case OriginEnv:
		return []option.ClientOption{option.WithCredentialsJSON(s.json)}
	case OriginFile:
		return []option.ClientOption{option.WithCredentialsFile(s.Path)}
	default:
		return nil
	}
}

// Describe returns a log-safe description of the source.
func (s *Source) Describe() string {
	switch s.Origin {
	case OriginEnv:
		return "env:" + s.EnvVar
	case OriginFile:
		return "file:" + s.Path
	default:
		return "none"
	}
}
