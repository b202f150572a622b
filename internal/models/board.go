package models

import (
	"time"
)

// Board is the top-level container owning lists.
type Board struct {
	ID                 string    `firestore:"-" json:"id"`
	Name               string    `firestore:"name" json:"name"`
	OwnerID            string    `firestore:"ownerId" json:"ownerId"`
	MemberIDs          []string  `firestore:"memberIds" json:"memberIds"`
	BackgroundImageURL *string   `firestore:"backgroundImageUrl,omitempty" json:"backgroundImageUrl,omitempty"`
	BackgroundColor    string    `firestore:"backgroundColor" json:"backgroundColor"`
	CreatedAt          time.Time `firestore:"createdAt" json:"createdAt"`
}

// HasMember reports whether userID is in the board's member set.
func (b Board) HasMember(userID string) bool {
	for _, id := range b.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// List is a named column of cards within a board.
type List struct {
	ID        string    `firestore:"-" json:"id"`
	BoardID   string    `firestore:"boardId" json:"boardId"`
	Name      string    `firestore:"name" json:"name"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}
