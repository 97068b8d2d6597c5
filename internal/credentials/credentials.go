package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrMissing is returned when a source has no API key to offer.
var ErrMissing = errors.New("credentials: API key is not set")

// Source yields the API key used to authenticate against the model gateway.
type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) APIKey(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a source for a key loaded at startup.
func Static(key string) Source {
	return SourceFunc(func(context.Context) (string, error) {
		key := strings.TrimSpace(key)
		if key == "" {
			return "", ErrMissing
		}
		return key, nil
	})
}

// Env reads the variable named name when the key is first needed.
func Env(name string) Source {
	return SourceFunc(func(context.Context) (string, error) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return "", fmt.Errorf("%w: %s", ErrMissing, name)
		}
		return v, nil
	})
}

// Getter is the parameter store read used by Parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type tokenPayload struct {
	Token string `json:"token"`
}

// Parameter reads the key from a parameter store entry. The stored value may
// be the bare key or a JSON object of the form {"token":"..."}.
func Parameter(getter Getter, name string) Source {
	return SourceFunc(func(ctx context.Context) (string, error) {
		return fetchFromParameter(ctx, getter, name)
	})
}

func fetchFromParameter(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("credentials: parameter getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("credentials: parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("credentials: fetch key from parameter store: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("credentials: unmarshal parameter value as JSON: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", ErrMissing
	}
	return raw, nil
}

// Cached resolves src on first use and reuses the key for the life of the
// process. Failures are not remembered: the next call asks src again.
func Cached(src Source) Source {
	return &cached{src: src}
}

type cached struct {
	src Source
	mu  sync.Mutex
	key string
}

func (c *cached) APIKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != "" {
		return c.key, nil
	}
	key, err := c.src.APIKey(ctx)
	if err != nil {
		return "", err
	}
	c.key = key
	return key, nil
}
