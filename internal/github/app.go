package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	gh "github.com/google/go-github/v66/github"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/beaconlabs/deploybeacon/internal/cache"
)

const tokenRefreshMargin = 5 * time.Minute

// AppAuth is the unbound half of the client factory: it holds the GitHub App
// credentials and can mint installation-scoped clients on demand. Bind never
// mutates AppAuth; it returns a new immutable Client.
type AppAuth struct {
	appID  int64
	key    *rsa.PrivateKey
	cache  cache.Cache
	logger zerolog.Logger
}

// NewAppAuth parses the app's PEM-encoded RSA key and returns an unbound
// factory. Installation tokens are cached in the injected cache, keyed per
// organization, so repeated binds are cheap.
func NewAppAuth(appID int64, privateKeyPEM []byte, c cache.Cache, logger zerolog.Logger) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "parse app private key")
	}
	return &AppAuth{
		appID:  appID,
		key:    key,
		cache:  c,
		logger: logger.With().Str("component", "github_auth").Logger(),
	}, nil
}

// Bind exchanges the app credentials for an installation token on the given
// organization and returns a client bound to it.
func (a *AppAuth) Bind(ctx context.Context, org string) (*Client, error) {
	token, err := a.installationToken(ctx, org)
	if err != nil {
		return nil, err
	}
	return NewClient(gh.NewClient(nil).WithAuthToken(token)), nil
}

func (a *AppAuth) installationToken(ctx context.Context, org string) (string, error) {
	cacheKey := "ghtoken:" + org
	if token, ok := a.cache.Get(ctx, cacheKey); ok {
		return token, nil
	}

	appJWT, err := a.signAppJWT()
	if err != nil {
		return "", err
	}
	appClient := gh.NewClient(nil).WithAuthToken(appJWT)

	installation, _, err := appClient.Apps.FindOrganizationInstallation(ctx, org)
	if err != nil {
		return "", errors.Wrapf(err, "find installation for org %s", org)
	}
	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installation.GetID(), nil)
	if err != nil {
		return "", errors.Wrapf(err, "create installation token for org %s", org)
	}

	ttl := time.Until(token.GetExpiresAt().Time) - tokenRefreshMargin
	if ttl > 0 {
		a.cache.Set(ctx, cacheKey, token.GetToken(), ttl)
	}
	a.logger.Debug().Str("org", org).Msg("minted installation token")
	return token.GetToken(), nil
}

func (a *AppAuth) signAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}
