package api

import (
	"errors"
	"strings"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

func bearerTokenFromString(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	const prefix = "Bearer "
	if len(trimmed) <= len(prefix) || trimmed[:len(prefix)] != prefix {
		return "", errBadAuthorization
	}
	token := trimmed[len(prefix):]
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
