package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Source is one place secrets can be looked up by key name.
type Source interface {
	// Lookup returns the value stored under key. Empty values read as
	// absent.
	Lookup(key string) (string, bool)
}

// EnvSource reads the process environment.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MapSource is a fixed set of key/value pairs, typically loaded from a
// dotenv file.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v := strings.TrimSpace(m[key])
	if v == "" {
		return "", false
	}
	return v, true
}

// LoadEnvFile reads a dotenv file into a MapSource. A missing file yields an
// empty source so that the process environment alone can drive resolution.
func LoadEnvFile(path string) (MapSource, error) {
	if path == "" {
		return MapSource{}, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MapSource{}, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return MapSource(values), nil
}
