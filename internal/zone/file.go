package zone

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/nazeru/quickshop-go/internal/geo"
)

type fileCenter struct {
	ID       string  `toml:"id"`
	Name     string  `toml:"name"`
	Lat      float64 `toml:"lat"`
	Lon      float64 `toml:"lon"`
	RadiusKm float64 `toml:"radius_km"`
	Active   *bool   `toml:"active"`
}

type file struct {
	Centers []fileCenter `toml:"center"`
}

// LoadFile reads centers from a TOML file of [[center]] tables. A center
// without an explicit active key is active.
func LoadFile(path string) ([]Center, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode zones %s: %w", path, err)
	}
	out := make([]Center, 0, len(f.Centers))
	for i, fc := range f.Centers {
		loc := geo.Coordinate{Lat: fc.Lat, Lon: fc.Lon}
		if fc.ID == "" {
			return nil, fmt.Errorf("zones %s: center %d has no id", path, i)
		}
		if !loc.Valid() {
			return nil, fmt.Errorf("zones %s: center %s has invalid location", path, fc.ID)
		}
		if fc.RadiusKm < 0 {
			return nil, fmt.Errorf("zones %s: center %s has negative radius", path, fc.ID)
		}
		active := true
		if fc.Active != nil {
			active = *fc.Active
		}
		out = append(out, Center{
			ID:       fc.ID,
			Name:     fc.Name,
			Location: loc,
			RadiusKm: fc.RadiusKm,
			Active:   active,
		})
	}
	return out, nil
}

// Watch reloads path into idx whenever its modification time changes,
// checking every interval until ctx is done. A file that fails to parse
// leaves the index as it was.
func Watch(ctx context.Context, path string, interval time.Duration, idx *Index, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		fi, err := os.Stat(path)
		if err != nil {
			log.Warn("zone file stat failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if !fi.ModTime().After(lastMod) {
			continue
		}
		centers, err := LoadFile(path)
		if err != nil {
			log.Warn("zone file reload failed", zap.String("path", path), zap.Error(err))
			continue
		}
		lastMod = fi.ModTime()
		idx.Replace(centers)
		log.Info("zones reloaded", zap.String("path", path), zap.Int("centers", len(centers)))
	}
}
