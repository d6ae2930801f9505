// Package types contains common types used across the application
package types

import "github.com/okian/lanes/internal/domain/lane"

// Entry represents a leaderboard entry
type Entry struct {
	Rank       int       `json:"rank"`
	ItemID     string    `json:"item_id"`
	Title      string    `json:"title"`
	Lane       lane.Lane `json:"lane"`
	ClickCount int       `json:"click_count"`
}
