package services

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/auth"
)

const verifyTimeout = 5 * time.Second

// FirebaseIdentity verifies Firebase Authentication ID tokens.
type FirebaseIdentity struct {
	client *fbauth.Client
}

func NewFirebaseIdentity(ctx context.Context, app *firebase.App) (*FirebaseIdentity, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}
	return &FirebaseIdentity{client: client}, nil
}

func (f *FirebaseIdentity) Verify(ctx context.Context, idToken string) (auth.Identity, error) {
	if idToken == "" {
		return auth.Identity{}, fmt.Errorf("%w: empty token provided", auth.ErrUnauthenticated)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	token, err := f.client.VerifyIDToken(verifyCtx, idToken)
	if err != nil {
		log.WithError(err).Debug("token verification failed")
		return auth.Identity{}, fmt.Errorf("%w: invalid or expired Firebase ID token", auth.ErrUnauthenticated)
	}
	if token.UID == "" {
		return auth.Identity{}, fmt.Errorf("%w: token missing user ID", auth.ErrUnauthenticated)
	}

	return identityFromClaims(token.UID, token.Firebase.SignInProvider, token.Claims), nil
}

func identityFromClaims(uid, provider string, claims map[string]interface{}) auth.Identity {
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	picture, _ := claims["picture"].(string)
	return auth.Identity{
		UID:      uid,
		Name:     name,
		Email:    email,
		PhotoURL: picture,
		Provider: provider,
	}
}

var _ auth.Verifier = (*FirebaseIdentity)(nil)
