package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// ClientOptions returns the credentials option for Google clients. An empty
// path falls back to Application Default Credentials.
func ClientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

func NewFirebaseApp(ctx context.Context, projectID, bucket string, opts ...option.ClientOption) (*firebase.App, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     projectID,
		StorageBucket: bucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}
	return app, nil
}
