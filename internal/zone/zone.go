// Package zone indexes fulfillment centers for nearest-center lookups.
package zone

import (
	"sync"

	"github.com/nazeru/quickshop-go/internal/geo"
)

// Center is a fulfillment center. The index never mutates centers; a refresh
// replaces the whole list.
type Center struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Location geo.Coordinate `json:"location"`
	RadiusKm float64        `json:"radius_km"`
	Active   bool           `json:"active"`
}

// Covers reports whether a point distanceKm away is inside the service radius.
func (c Center) Covers(distanceKm float64) bool {
	return distanceKm <= c.RadiusKm
}

type Index struct {
	mu      sync.RWMutex
	centers []Center
}

func NewIndex(centers []Center) *Index {
	idx := &Index{}
	idx.Replace(centers)
	return idx
}

// Replace swaps the center list. Insertion order is kept for tie-breaking.
func (x *Index) Replace(centers []Center) {
	cp := make([]Center, len(centers))
	copy(cp, centers)
	x.mu.Lock()
	x.centers = cp
	x.mu.Unlock()
}

func (x *Index) Centers() []Center {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Center, len(x.centers))
	copy(out, x.centers)
	return out
}

func (x *Index) Active() []Center {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Center
	for _, c := range x.centers {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// Nearest returns the active center closest to coord and its distance in km.
// On equal distances the earlier center wins. ok is false when no center is
// active.
func (x *Index) Nearest(coord geo.Coordinate) (center Center, distanceKm float64, ok bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, c := range x.centers {
		if !c.Active {
			continue
		}
		d := geo.DistanceKm(coord, c.Location)
		if !ok || d < distanceKm {
			center, distanceKm, ok = c, d, true
		}
	}
	return center, distanceKm, ok
}
