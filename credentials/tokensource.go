package credentials

import (
	"golang.org/x/oauth2"

	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
)

var _ oauth2.TokenSource = storeTokenSource{}

type storeTokenSource struct {
	store *Store
}

// TokenSource exposes the store's current pair as an oauth2.TokenSource.
// It never refreshes; renewal is driven by the backend answering 401.
// Returns ErrNotAuthenticated when the store is empty.
func TokenSource(store *Store) oauth2.TokenSource {
	return storeTokenSource{store: store}
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	pair, ok := ts.store.Get()
	if !ok {
		return nil, clienterrors.ErrNotAuthenticated
	}
	token := &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
	if claims, err := pair.Claims(); err == nil && claims.ExpiresAt != nil {
		token.Expiry = claims.ExpiresAt.Time
	}
	return token, nil
}
