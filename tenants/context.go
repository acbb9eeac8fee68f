package tenants

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context holds the active workspace id. Every change is written to storage
// and mirrored into the cookie jar for the API origin, when one is attached.
type Context struct {
	storage Storage
	jar     http.CookieJar
	origin  *url.URL
	logger  zerolog.Logger
	lock    sync.RWMutex
}

type ContextOption func(*Context)

// WithCookieJar mirrors the workspace id into jar as a cookie scoped to
// origin.
func WithCookieJar(jar http.CookieJar, origin *url.URL) ContextOption {
	return func(c *Context) {
		c.jar = jar
		c.origin = origin
	}
}

func WithLogger(logger zerolog.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

func NewContext(storage Storage, options ...ContextOption) *Context {
	c := &Context{
		storage: storage,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "tenants").Logger()

	// Restore the cookie for a workspace selected in an earlier run.
	if id, ok := c.Get(); ok {
		c.mirror(Cookie(id))
	}
	return c
}

// NewMemoryContext is a Context with in-memory storage and no cookie jar.
func NewMemoryContext(options ...ContextOption) *Context {
	return NewContext(NewMemoryStorage(), options...)
}

// Get returns the active workspace id. A storage failure reads as no
// workspace selected.
func (c *Context) Get() (string, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	id, err := c.storage.Load()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read workspace, treating as unset")
		return "", false
	}
	return id, id != ""
}

// Set makes id the active workspace. An empty id clears the context.
func (c *Context) Set(id string) {
	if id == "" {
		c.Clear()
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.storage.Save(id); err != nil {
		c.logger.Warn().Err(err).Str("workspace_id", id).Msg("failed to store workspace")
	}
	c.mirror(Cookie(id))
	c.logger.Debug().Str("workspace_id", id).Msg("workspace selected")
}

// Clear removes the active workspace and expires the cookie.
func (c *Context) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.storage.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear workspace")
	}
	c.mirror(ExpiredCookie())
	c.logger.Debug().Msg("workspace cleared")
}

func (c *Context) mirror(cookie *http.Cookie) {
	if c.jar == nil || c.origin == nil {
		return
	}
	c.jar.SetCookies(c.origin, []*http.Cookie{cookie})
}

// Cookie builds the workspace_id cookie for id.
func Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie builds a workspace_id cookie that deletes any existing one.
func ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromRequest reads the workspace id from an inbound request's cookie.
func FromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
