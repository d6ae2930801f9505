// Package lane implements the lane policy: the pure function that maps an
// item's current lane and click count to its next lane.
package lane

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Lane is a visibility tier. Lanes are totally ordered New < Trending < Graduated.
type Lane string

const (
	New       Lane = "new"
	Trending  Lane = "trending"
	Graduated Lane = "graduated"
)

// All lists the lanes in promotion order.
var All = []Lane{New, Trending, Graduated} //nolint:gochecknoglobals // fixed enumeration

// Rank is the lane's position in promotion order. Unknown lanes rank as New.
func (l Lane) Rank() int {
	switch l {
	case Trending:
		return 1
	case Graduated:
		return 2
	default:
		return 0
	}
}

// Valid reports whether l is one of the three known lanes.
func (l Lane) Valid() bool {
	return l == New || l == Trending || l == Graduated
}

func (l Lane) String() string { return string(l) }

// Parse converts a stored or user supplied lane name.
func Parse(s string) (Lane, error) {
	l := Lane(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLane, s)
	}
	return l, nil
}

// Thresholds are the click counts at which an item is promoted.
type Thresholds struct {
	PromoteToTrending  int `json:"promote_to_trending"`
	PromoteToGraduated int `json:"promote_to_graduated"`
}

// DefaultThresholds returns 5 and 20.
func DefaultThresholds() Thresholds {
	return Thresholds{PromoteToTrending: 5, PromoteToGraduated: 20}
}

// Validate requires positive thresholds with graduated strictly above trending.
func (t Thresholds) Validate() error {
	if t.PromoteToTrending <= 0 || t.PromoteToGraduated <= 0 {
		return fmt.Errorf("%w: thresholds must be positive (%d, %d)",
			ErrInvalidThresholds, t.PromoteToTrending, t.PromoteToGraduated)
	}
	if t.PromoteToGraduated <= t.PromoteToTrending {
		return fmt.Errorf("%w: graduated (%d) must exceed trending (%d)",
			ErrInvalidThresholds, t.PromoteToGraduated, t.PromoteToTrending)
	}
	return nil
}

// Next returns the lane an item should occupy after a write that left it at
// clickCount. At most one transition happens per evaluation, Graduated is
// absorbing, and the result never ranks below current.
func Next(current Lane, clickCount int, t Thresholds) Lane {
	switch current {
	case Graduated:
		return Graduated
	case Trending:
		if clickCount >= t.PromoteToGraduated {
			return Graduated
		}
		return Trending
	default:
		if clickCount >= t.PromoteToTrending {
			return Trending
		}
		return New
	}
}

// Policy holds the thresholds in effect and swaps them atomically. A change
// only affects future evaluations, so it can never move an item backwards.
type Policy struct {
	current atomic.Pointer[Thresholds]
}

// NewPolicy validates t and returns a Policy using it.
func NewPolicy(t Thresholds) (*Policy, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{}
	p.current.Store(&t)
	return p, nil
}

// Thresholds returns the thresholds in effect.
func (p *Policy) Thresholds() Thresholds {
	return *p.current.Load()
}

// Update replaces the thresholds. Invalid thresholds leave the policy unchanged.
func (p *Policy) Update(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.current.Store(&t)
	return nil
}

// Evaluate applies Next with the thresholds in effect.
func (p *Policy) Evaluate(current Lane, clickCount int) Lane {
	return Next(current, clickCount, p.Thresholds())
}
