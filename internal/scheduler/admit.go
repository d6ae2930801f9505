// Package scheduler runs the synthetic clicker. Each tick it picks one item
// that it can click without pushing a full lane over its ceiling and drives
// it through the normal click path.
package scheduler

import (
	"fmt"

	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/model"
)

// Capacity holds the population ceilings the scheduler respects. Real
// clicks are never held to them.
type Capacity struct {
	MaxTrending  int `json:"max_trending"`
	MaxGraduated int `json:"max_graduated"`
}

// DefaultCapacity returns 5 trending and 3 graduated.
func DefaultCapacity() Capacity {
	return Capacity{MaxTrending: 5, MaxGraduated: 3}
}

// Validate rejects negative ceilings.
func (c Capacity) Validate() error {
	if c.MaxTrending < 0 || c.MaxGraduated < 0 {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidCapacity, c.MaxTrending, c.MaxGraduated)
	}
	return nil
}

// Admit returns the items the scheduler may click this tick.
//
// Trending items come first and only while Graduated has room. A trending
// item whose next click would not graduate it is always admitted; one that
// would graduate it is admitted only while Graduated has room for at least
// two more. New items are considered only when no trending item qualified,
// under the same rule against Trending. Nothing is admitted once both lanes
// are at capacity.
func Admit(pop model.Population, trending, newItems []model.Item, t lane.Thresholds, c Capacity) []model.Item {
	if pop.Trending >= c.MaxTrending && pop.Graduated >= c.MaxGraduated {
		return nil
	}

	if pop.Graduated < c.MaxGraduated {
		if out := admitLane(trending, lane.Trending, t.PromoteToGraduated, pop.Graduated < c.MaxGraduated-1); len(out) > 0 {
			return out
		}
	}

	if pop.Trending < c.MaxTrending {
		return admitLane(newItems, lane.New, t.PromoteToTrending, pop.Trending < c.MaxTrending-1)
	}
	return nil
}

func admitLane(items []model.Item, from lane.Lane, threshold int, nearAllowed bool) []model.Item {
	var out []model.Item
	for _, it := range items {
		if it.Lane != from || !it.Active {
			continue
		}
		if it.ClickCount+1 < threshold || nearAllowed {
			out = append(out, it)
		}
	}
	return out
}
