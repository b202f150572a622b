package models

import (
	"sort"
	"time"
)

type GeoLocation struct {
	Latitude  float64 `firestore:"latitude" json:"latitude"`
	Longitude float64 `firestore:"longitude" json:"longitude"`
	Address   string  `firestore:"address" json:"address"`
	PlaceName string  `firestore:"placeName" json:"placeName"`
}

// Card is a work item within a list. DueDate is epoch millis.
type Card struct {
	ID                string       `firestore:"-" json:"id"`
	ListID            string       `firestore:"listId" json:"listId"`
	Title             string       `firestore:"title" json:"title"`
	Description       *string      `firestore:"description,omitempty" json:"description,omitempty"`
	DueDate           *int64       `firestore:"dueDate,omitempty" json:"dueDate,omitempty"`
	AssignedMemberIDs []string     `firestore:"assignedMemberIds" json:"assignedMemberIds"`
	Location          *GeoLocation `firestore:"location,omitempty" json:"location,omitempty"`
	CreatedAt         time.Time    `firestore:"createdAt" json:"createdAt"`
}

type Comment struct {
	ID         string    `firestore:"-" json:"id"`
	CardID     string    `firestore:"cardId" json:"cardId"`
	AuthorID   string    `firestore:"authorId" json:"authorId"`
	AuthorName string    `firestore:"authorName" json:"authorName"`
	Text       string    `firestore:"text" json:"text"`
	CreatedAt  time.Time `firestore:"createdAt" json:"createdAt"`
}

// GroupCardsByList returns one entry per list, empty when the list has no
// cards. Cards keep their input order; cards whose list is not in lists are
// dropped.
func GroupCardsByList(lists []List, cards []Card) map[string][]Card {
	out := make(map[string][]Card, len(lists))
	for _, l := range lists {
		out[l.ID] = []Card{}
	}
	for _, c := range cards {
		if group, ok := out[c.ListID]; ok {
			out[c.ListID] = append(group, c)
		}
	}
	return out
}

// SortComments returns a copy of comments ordered by timestamp, oldest first.
func SortComments(comments []Comment) []Comment {
	out := make([]Comment, len(comments))
	copy(out, comments)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
