package scenario

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/caarlos0/env/v11"
)

// AppURLVar is the environment variable holding the target URL.
const AppURLVar = "APP_URL"

var (
	// ErrMissingAppURL is returned when APP_URL is unset or empty.
	ErrMissingAppURL = errors.New("APP_URL environment variable is missing")

	// ErrInvalidAppURL is returned when APP_URL is not an absolute http(s) URL.
	ErrInvalidAppURL = errors.New("invalid APP_URL")
)

// Target resolves the URL a workload requests.
type Target interface {
	Resolve() (string, error)
	String() string
}

// ConstantTarget is a URL fixed at definition time.
type ConstantTarget string

// Resolve returns the URL unchanged.
func (t ConstantTarget) Resolve() (string, error) {
	return string(t), nil
}

func (t ConstantTarget) String() string {
	return string(t)
}

type appTarget struct {
	URL string `env:"APP_URL,required,notEmpty"`
}

// EnvTarget reads APP_URL on every call to Resolve.
type EnvTarget struct {
	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// Resolve looks APP_URL up and validates it.
func (t EnvTarget) Resolve() (string, error) {
	cfg, err := env.ParseAsWithOptions[appTarget](env.Options{Environment: t.Environment})
	if err != nil {
		return "", ErrMissingAppURL
	}
	if err := ValidateTargetURL(cfg.URL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAppURL, err)
	}
	return cfg.URL, nil
}

func (t EnvTarget) String() string {
	return "$" + AppURLVar
}

type onceTarget struct {
	inner   Target
	resolve func() (string, error)
}

// Once wraps t so that it is resolved a single time, on first use.
// Concurrent first callers share the same resolution; the result, including
// an error, is returned to every later caller.
func Once(t Target) Target {
	return &onceTarget{inner: t, resolve: sync.OnceValues(t.Resolve)}
}

func (t *onceTarget) Resolve() (string, error) {
	return t.resolve()
}

func (t *onceTarget) String() string {
	return t.inner.String()
}

// ValidateTargetURL reports whether raw is an absolute http or https URL.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
