package api

import (
	"errors"
	"os"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"board-api/domain"
)

const (
	envLocalAuthMode   = "LOCAL_AUTH_MODE"
	envLocalAuthSecret = "LOCAL_AUTH_SHARED_SECRET"
)

// Auth validates incoming JWT bearer tokens and resolves the acting user.
// Production deployments verify RS256 signatures against a JWKS endpoint;
// LOCAL_AUTH_MODE=hs256 switches to a shared secret for local development.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser *jwt.Parser
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}

	if mode := strings.ToLower(os.Getenv(envLocalAuthMode)); mode != "" {
		switch mode {
		case "hs256":
			secret := os.Getenv(envLocalAuthSecret)
			if secret == "" {
				panic("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
			}
			a.TestMode = true
			a.TestSecret = []byte(secret)
		default:
			panic("unsupported LOCAL_AUTH_MODE value")
		}
	}

	if a.TestMode {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// UserFromAuthHeader extracts the acting user from an Authorization header.
func (a *Auth) UserFromAuthHeader(h string) (domain.User, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return domain.User{}, err
	}
	return a.UserFromBearer(token)
}

// UserFromBearer extracts the acting user from a raw bearer token.
func (a *Auth) UserFromBearer(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, errBadAuthorization
	}

	var parsed *jwt.Token
	var err error
	if a.TestMode {
		parsed, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		if a.JWKS == nil {
			return domain.User{}, errors.New("jwks not configured")
		}
		parsed, err = a.parser.Parse(token, a.JWKS.Keyfunc)
	}
	if err != nil {
		return domain.User{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.User{}, errors.New("invalid claims")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return domain.User{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return domain.User{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.User{}, errors.New("missing sub")
	}
	user := domain.User{ID: sub, Email: sub}
	if email, ok := claims["email"].(string); ok && email != "" {
		user.Email = email
	}
	return user, nil
}
