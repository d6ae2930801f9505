// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/lanes/internal/domain/lane"
)

// Item is a rankable entity. ClickCount and Lane are owned by the engagement
// path; the catalog only ever writes the display fields and Active/LastSeen.
type Item struct {
	ID         string    `json:"item_id" db:"item_id"`
	Title      string    `json:"title" db:"title"`
	Employer   string    `json:"employer" db:"employer"`
	City       string    `json:"city,omitempty" db:"city"`
	State      string    `json:"state,omitempty" db:"state"`
	Country    string    `json:"country,omitempty" db:"country"`
	ApplyLink  string    `json:"apply_link,omitempty" db:"apply_link"`
	LogoURL    string    `json:"logo_url,omitempty" db:"logo_url"`
	Lane       lane.Lane `json:"lane" db:"lane"`
	ClickCount int       `json:"click_count" db:"click_count"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	LastSeen   time.Time `json:"last_seen" db:"last_seen"`
}

// VisibleAt reports whether the item is active and released by now.
func (i Item) VisibleAt(now time.Time) bool {
	return i.Active && !i.CreatedAt.After(now)
}

// CatalogItem is the display metadata delivered by the catalog feed.
type CatalogItem struct {
	ID        string
	Title     string
	Employer  string
	City      string
	State     string
	Country   string
	ApplyLink string
	LogoURL   string
}

// Engagement is what the store reports back from one atomic click unit.
// When Inserted is false the item was not mutated.
type Engagement struct {
	Inserted bool
	PrevLane lane.Lane
	Item     Item
}

// LaneChanged reports whether this write moved the item to a new lane.
func (e Engagement) LaneChanged() bool {
	return e.Inserted && e.Item.Lane != e.PrevLane
}

// ClickResult is returned to the caller of RecordClick.
type ClickResult struct {
	Accepted   bool       `json:"accepted"`
	Duplicate  bool       `json:"duplicate"`
	NewLane    *lane.Lane `json:"new_lane"`
	ClickCount int        `json:"click_count"`
}

// ResultOf converts a store engagement into a caller facing result.
func ResultOf(e Engagement) ClickResult {
	r := ClickResult{
		Accepted:   e.Inserted,
		Duplicate:  !e.Inserted,
		ClickCount: e.Item.ClickCount,
	}
	if e.LaneChanged() {
		l := e.Item.Lane
		r.NewLane = &l
	}
	return r
}

// Change event names on the wire.
const (
	EventClicked  = "job-clicked"
	EventMigrated = "job-migrated"
)

// Change is published after a click commits. NewLane is set only when the
// click moved the item.
type Change struct {
	ItemID     string     `json:"jobId"`
	Title      string     `json:"jobTitle,omitempty"`
	ClickCount int        `json:"clickCount"`
	NewLane    *lane.Lane `json:"newLane,omitempty"`
	At         time.Time  `json:"at"`
}

// Type returns the wire event name.
func (c Change) Type() string {
	if c.NewLane != nil {
		return EventMigrated
	}
	return EventClicked
}

// ChangeOf builds the notification for a committed engagement.
func ChangeOf(e Engagement, at time.Time) Change {
	return Change{
		ItemID:     e.Item.ID,
		Title:      e.Item.Title,
		ClickCount: e.Item.ClickCount,
		NewLane:    ResultOf(e).NewLane,
		At:         at,
	}
}

// Population counts active items per lane.
type Population struct {
	New       int `json:"new"`
	Trending  int `json:"trending"`
	Graduated int `json:"graduated"`
}

// Of returns the count for l.
func (p Population) Of(l lane.Lane) int {
	switch l {
	case lane.Trending:
		return p.Trending
	case lane.Graduated:
		return p.Graduated
	default:
		return p.New
	}
}

// Add increments the count for l.
func (p *Population) Add(l lane.Lane) {
	switch l {
	case lane.Trending:
		p.Trending++
	case lane.Graduated:
		p.Graduated++
	default:
		p.New++
	}
}

// Board is the reconciliation view: every visible item plus the same items
// split by lane, each list newest first.
type Board struct {
	Items  []Item `json:"items"`
	ByLane Lanes  `json:"by_lane"`
}

// Lanes groups items by lane.
type Lanes struct {
	New       []Item `json:"new"`
	Trending  []Item `json:"trending"`
	Graduated []Item `json:"graduated"`
}

// BoardOf splits items, which must already be ordered newest first.
func BoardOf(items []Item) Board {
	b := Board{
		Items: items,
		ByLane: Lanes{
			New:       []Item{},
			Trending:  []Item{},
			Graduated: []Item{},
		},
	}
	for _, it := range items {
		switch it.Lane {
		case lane.Trending:
			b.ByLane.Trending = append(b.ByLane.Trending, it)
		case lane.Graduated:
			b.ByLane.Graduated = append(b.ByLane.Graduated, it)
		default:
			b.ByLane.New = append(b.ByLane.New, it)
		}
	}
	return b
}
