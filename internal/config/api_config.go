package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
)

// DefaultBaseURL keeps local development unblocked when no backend origin
// is configured.
const DefaultBaseURL = "http://localhost:8080"

type API struct {
	v *viper.Viper
}

var _ APIConfig = API{}

func (a API) HasBaseURL() bool {
	return strings.TrimSpace(a.v.GetString(KeyBaseURL)) != ""
}

func (a API) GetBaseURL() string {
	baseURL, err := a.RequireBaseURL()
	if err != nil {
		log.Warn().Err(err).Str("default", DefaultBaseURL).Msg("falling back to default api base URL")
		return DefaultBaseURL
	}
	return baseURL
}

func (a API) RequireBaseURL() (string, error) {
	raw := strings.TrimSpace(a.v.GetString(KeyBaseURL))
	if raw == "" {
		return "", clienterrors.ErrMissingBaseURL
	}
	return NormaliseBaseURL(raw)
}

func (a API) GetTimeout() time.Duration {
	timeout := a.v.GetDuration(KeyTimeout)
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

// NormaliseBaseURL checks that raw is an absolute http(s) URL and strips any
// trailing slash so request paths can be appended directly.
func NormaliseBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", clienterrors.ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https, got %q", clienterrors.ErrInvalidBaseURL, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", clienterrors.ErrInvalidBaseURL, raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
