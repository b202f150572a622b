package services

import (
	"testing"

	"github.com/ytakahashi/boardsync/internal/auth"
)

func TestIdentityFromClaims(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		claims   map[string]interface{}
		want     auth.Identity
	}{
		{
			name:     "google sign-in",
			provider: "google.com",
			claims: map[string]interface{}{
				"name":    "Ann",
				"email":   "ann@example.com",
				"picture": "https://img/ann.png",
			},
			want: auth.Identity{UID: "u1", Name: "Ann", Email: "ann@example.com", PhotoURL: "https://img/ann.png", Provider: "google.com"},
		},
		{
			name:     "password without profile",
			provider: "password",
			claims:   map[string]interface{}{"email": "bo@example.com"},
			want:     auth.Identity{UID: "u1", Email: "bo@example.com", Provider: "password"},
		},
		{
			name:     "non-string claims ignored",
			provider: "password",
			claims:   map[string]interface{}{"name": 42, "email": nil},
			want:     auth.Identity{UID: "u1", Provider: "password"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := identityFromClaims("u1", tt.provider, tt.claims); got != tt.want {
				t.Fatalf("identity = %+v, want %+v", got, tt.want)
			}
		})
	}
}
