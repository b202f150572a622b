package models

import (
	"time"
)

// User is created on first sign-in and merged on every later one.
type User struct {
	ID          string            `firestore:"-" json:"id"`
	DisplayName string            `firestore:"displayName" json:"displayName"`
	Email       string            `firestore:"email" json:"email"`
	PhotoURL    *string           `firestore:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	Bio         string            `firestore:"bio" json:"bio"`
	Department  string            `firestore:"department" json:"department"`
	Position    string            `firestore:"position" json:"position"`
	Skills      []string          `firestore:"skills" json:"skills"`
	Providers   []string          `firestore:"providers" json:"providers"`
	Preferences map[string]string `firestore:"preferences" json:"preferences"`
	CreatedAt   time.Time         `firestore:"createdAt" json:"createdAt"`
	LastLoginAt time.Time         `firestore:"lastLoginAt" json:"lastLoginAt"`
}

// Photo is a background candidate returned by the photo search API.
type Photo struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	URLs   PhotoURLs `json:"urls"`
}

type PhotoURLs struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}
