package models

import (
	"time"
)

type ChecklistItem struct {
	ID        string    `firestore:"id" json:"id"`
	Text      string    `firestore:"text" json:"text"`
	Checked   bool      `firestore:"checked" json:"checked"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}

// Checklist is a named sequence of checkable items attached to a card.
//
// The With* methods never touch the receiver's item slice: each returns a new
// Checklist backed by a fresh slice, so a value handed out in a snapshot stays
// valid after later edits.
type Checklist struct {
	ID     string          `firestore:"-" json:"id"`
	CardID string          `firestore:"cardId" json:"cardId"`
	Title  string          `firestore:"title" json:"title"`
	Items  []ChecklistItem `firestore:"items" json:"items"`
}

func (c Checklist) WithItem(item ChecklistItem) Checklist {
	items := make([]ChecklistItem, 0, len(c.Items)+1)
	items = append(items, c.Items...)
	c.Items = append(items, item)
	return c
}

func (c Checklist) WithItemToggled(itemID string) Checklist {
	return c.mapItem(itemID, func(it ChecklistItem) ChecklistItem {
		it.Checked = !it.Checked
		return it
	})
}

func (c Checklist) WithItemChecked(itemID string, checked bool) Checklist {
	return c.mapItem(itemID, func(it ChecklistItem) ChecklistItem {
		it.Checked = checked
		return it
	})
}

func (c Checklist) WithItemText(itemID, text string) Checklist {
	return c.mapItem(itemID, func(it ChecklistItem) ChecklistItem {
		it.Text = text
		return it
	})
}

func (c Checklist) WithoutItem(itemID string) Checklist {
	items := make([]ChecklistItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	c.Items = items
	return c
}

// HasItem reports whether the checklist contains an item with the given id.
func (c Checklist) HasItem(itemID string) bool {
	for _, it := range c.Items {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

// Progress is the ratio of checked items, 0 for an empty checklist.
func (c Checklist) Progress() float64 {
	if len(c.Items) == 0 {
		return 0
	}
	done := 0
	for _, it := range c.Items {
		if it.Checked {
			done++
		}
	}
	return float64(done) / float64(len(c.Items))
}

func (c Checklist) mapItem(itemID string, fn func(ChecklistItem) ChecklistItem) Checklist {
	items := make([]ChecklistItem, len(c.Items))
	for i, it := range c.Items {
		if it.ID == itemID {
			it = fn(it)
		}
		items[i] = it
	}
	c.Items = items
	return c
}

// ChecklistsProgress is the ratio of checked items across all checklists.
func ChecklistsProgress(checklists []Checklist) float64 {
	total, done := 0, 0
	for _, cl := range checklists {
		for _, it := range cl.Items {
			total++
			if it.Checked {
				done++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}
