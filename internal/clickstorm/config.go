// Package clickstorm drives a running lanes server with concurrent clicks
// and checks that the item ends up where sequential clicks would put it.
package clickstorm

import (
	"time"

	"github.com/okian/lanes/internal/domain/lane"
)

// Config holds configuration for a storm run.
type Config struct {
	BaseURL    string          // Base URL of the service
	ItemID     string          // Item to click; a fresh id is generated when empty
	Actors     int             // Distinct actors, each clicking once
	Duplicates int             // Extra clicks replayed from already-used actors
	Workers    int             // Number of concurrent workers
	Rate       float64         // Client-side requests per second, 0 for unlimited
	Timeout    time.Duration   // HTTP request timeout
	Thresholds lane.Thresholds // Thresholds the server is running with
	Verbose    bool            // Log every click
}

// Stats holds run statistics.
type Stats struct {
	Submitted  int
	Accepted   int
	Duplicate  int
	Failed     int
	Throttled  int
	Migrations int
	FinalCount int
	FinalLane  lane.Lane
	StartTime  time.Time
	Duration   time.Duration
}

type clickRequest struct {
	ItemID  string `json:"item_id"`
	ActorID string `json:"actor_id"`
}

type clickResponse struct {
	Status     string     `json:"status"`
	Accepted   bool       `json:"accepted"`
	Duplicate  bool       `json:"duplicate"`
	NewLane    *lane.Lane `json:"new_lane,omitempty"`
	ClickCount int        `json:"click_count"`
}

type itemResponse struct {
	ItemID     string    `json:"item_id"`
	Lane       lane.Lane `json:"lane"`
	ClickCount int       `json:"click_count"`
}
