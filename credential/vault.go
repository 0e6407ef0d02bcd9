package credential

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrEmptyAccessToken is returned by Save when the pair carries no access token.
	ErrEmptyAccessToken = errors.New("access token is empty")
	// ErrNoCredentials is returned by the token source when nothing is stored.
	ErrNoCredentials = errors.New("no stored credentials")
)

// Pair is the access/refresh credential pair.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Token converts the pair to an oauth2 bearer token. Expiry is left zero; the
// server signals expiry through 401 responses rather than a client-side clock.
func (p Pair) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: p.RefreshToken,
	}
}

// Vault reads and writes the credential pair through a [Store].
//
// Clear removes both tokens and every configured session key, so cached
// session remnants (user profile, cart owner, etc.) go with the credentials.
type Vault struct {
	store       Store
	sessionKeys []string
}

// NewVault wraps store. sessionKeys are extra keys removed by Clear.
func NewVault(store Store, sessionKeys ...string) *Vault {
	keys := make([]string, 0, len(sessionKeys))
	for _, k := range sessionKeys {
		if k == "" || k == KeyAccessToken || k == KeyRefreshToken {
			continue
		}
		keys = append(keys, k)
	}
	return &Vault{store: store, sessionKeys: keys}
}

// Store returns the underlying capability.
func (v *Vault) Store() Store {
	return v.store
}

// AccessToken returns the stored access token, or "" when none is stored.
func (v *Vault) AccessToken(ctx context.Context) (string, error) {
	return v.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func (v *Vault) RefreshToken(ctx context.Context) (string, error) {
	return v.get(ctx, KeyRefreshToken)
}

// Pair returns the stored pair. ok is false when no access token is stored.
func (v *Vault) Pair(ctx context.Context) (Pair, bool, error) {
	access, err := v.AccessToken(ctx)
	if err != nil {
		return Pair{}, false, err
	}
	refresh, err := v.RefreshToken(ctx)
	if err != nil {
		return Pair{}, false, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, access != "", nil
}

// Save writes the pair. An empty RefreshToken keeps the stored one, matching
// refresh responses that only rotate the access token.
func (v *Vault) Save(ctx context.Context, p Pair) error {
	if p.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	if err := v.store.Set(ctx, KeyAccessToken, p.AccessToken); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	if p.RefreshToken != "" {
		if err := v.store.Set(ctx, KeyRefreshToken, p.RefreshToken); err != nil {
			return fmt.Errorf("save refresh token: %w", err)
		}
	}
	return nil
}

// Clear removes both tokens and the session keys. Every key is attempted even
// when an earlier removal fails.
func (v *Vault) Clear(ctx context.Context) error {
	var errs []error
	for _, k := range append([]string{KeyAccessToken, KeyRefreshToken}, v.sessionKeys...) {
		if err := v.store.Remove(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// TokenSource exposes the stored pair as an [oauth2.TokenSource]. It never
// refreshes on its own.
func (v *Vault) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &vaultTokenSource{ctx: ctx, vault: v}
}

func (v *Vault) get(ctx context.Context, key string) (string, error) {
	val, ok, err := v.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return val, nil
}

type vaultTokenSource struct {
	ctx   context.Context
	vault *Vault
}

func (s *vaultTokenSource) Token() (*oauth2.Token, error) {
	p, ok, err := s.vault.Pair(s.ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCredentials
	}
	return p.Token(), nil
}
