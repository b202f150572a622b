package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// LocalVerifier accepts HS256 tokens signed with a shared secret. It stands in
// for the identity provider when running against the in-memory backend.
type LocalVerifier struct {
	secret []byte
}

func NewLocalVerifier(secret string) *LocalVerifier {
	return &LocalVerifier{secret: []byte(secret)}
}

type LocalClaims struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

func (v *LocalVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if idToken == "" {
		return Identity{}, fmt.Errorf("%w: empty token provided", ErrUnauthenticated)
	}
	var claims LocalClaims
	_, err := jwt.ParseWithClaims(idToken, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: invalid token: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token missing user ID", ErrUnauthenticated)
	}
	provider := claims.Provider
	if provider == "" {
		provider = "password"
	}
	return Identity{
		UID:      claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		PhotoURL: claims.Picture,
		Provider: provider,
	}, nil
}

// Sign issues a token LocalVerifier accepts. Used by tooling and tests.
func (v *LocalVerifier) Sign(id Identity) (string, error) {
	claims := LocalClaims{
		Name:     id.Name,
		Email:    id.Email,
		Picture:  id.PhotoURL,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.UID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
