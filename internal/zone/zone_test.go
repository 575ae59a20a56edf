package zone

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickshop-go/internal/geo"
)

func TestNearest_PicksClosestActive(t *testing.T) {
	idx := NewIndex([]Center{
		{ID: "far", Location: geo.Coordinate{Lat: 0, Lon: 1}, RadiusKm: 5, Active: true},
		{ID: "near-inactive", Location: geo.Coordinate{Lat: 0, Lon: 0.001}, RadiusKm: 5, Active: false},
		{ID: "near", Location: geo.Coordinate{Lat: 0, Lon: 0.01}, RadiusKm: 5, Active: true},
	})

	c, km, ok := idx.Nearest(geo.Coordinate{})
	require.True(t, ok)
	assert.Equal(t, "near", c.ID)
	assert.InDelta(t, 1.112, km, 0.001)
	assert.True(t, c.Covers(km))
}

func TestNearest_TieGoesToFirst(t *testing.T) {
	idx := NewIndex([]Center{
		{ID: "east", Location: geo.Coordinate{Lat: 0, Lon: 0.5}, Active: true},
		{ID: "west", Location: geo.Coordinate{Lat: 0, Lon: -0.5}, Active: true},
	})

	c, _, ok := idx.Nearest(geo.Coordinate{})
	require.True(t, ok)
	assert.Equal(t, "east", c.ID)

	idx.Replace([]Center{
		{ID: "west", Location: geo.Coordinate{Lat: 0, Lon: -0.5}, Active: true},
		{ID: "east", Location: geo.Coordinate{Lat: 0, Lon: 0.5}, Active: true},
	})
	c, _, _ = idx.Nearest(geo.Coordinate{})
	assert.Equal(t, "west", c.ID)
}

func TestNearest_NoActiveCenters(t *testing.T) {
	idx := NewIndex([]Center{{ID: "closed", Active: false}})
	_, _, ok := idx.Nearest(geo.Coordinate{})
	assert.False(t, ok)

	_, _, ok = NewIndex(nil).Nearest(geo.Coordinate{})
	assert.False(t, ok)
}

func TestCovers_BoundaryInclusive(t *testing.T) {
	c := Center{RadiusKm: 3}
	assert.True(t, c.Covers(3))
	assert.False(t, c.Covers(3.0001))
}

func TestIndex_ReplaceCopiesInput(t *testing.T) {
	in := []Center{{ID: "a", Active: true}}
	idx := NewIndex(in)
	in[0].ID = "mutated"

	assert.Equal(t, "a", idx.Centers()[0].ID)
	assert.Len(t, idx.Active(), 1)
}

const zonesFile = `
[[center]]
id = "one"
name = "One"
lat = 12.97
lon = 77.64
radius_km = 4.0

[[center]]
id = "two"
name = "Two"
lat = 12.93
lon = 77.62
radius_km = 3.5
active = false
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.toml")
	require.NoError(t, os.WriteFile(path, []byte(zonesFile), 0o644))

	centers, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, centers, 2)
	assert.Equal(t, Center{ID: "one", Name: "One", Location: geo.Coordinate{Lat: 12.97, Lon: 77.64}, RadiusKm: 4, Active: true}, centers[0])
	assert.False(t, centers[1].Active)
}

func TestLoadFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", "[[center]]\nlat = 1.0\nlon = 1.0\n"},
		{"bad latitude", "[[center]]\nid = \"x\"\nlat = 91.0\nlon = 1.0\n"},
		{"negative radius", "[[center]]\nid = \"x\"\nradius_km = -1.0\n"},
		{"not toml", "[[center"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "zones.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_ShippedConfig(t *testing.T) {
	centers, err := LoadFile("../../configs/zones.toml")
	require.NoError(t, err)
	assert.NotEmpty(t, centers)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.toml")
	require.NoError(t, os.WriteFile(path, []byte(zonesFile), 0o644))
	initial, err := LoadFile(path)
	require.NoError(t, err)
	idx := NewIndex(initial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, path, 10*time.Millisecond, idx, nil)
		close(done)
	}()

	updated := "[[center]]\nid = \"three\"\nlat = 1.0\nlon = 1.0\nradius_km = 2.0\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		cs := idx.Centers()
		return len(cs) == 1 && cs[0].ID == "three"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWatch_KeepsIndexOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.toml")
	require.NoError(t, os.WriteFile(path, []byte(zonesFile), 0o644))
	initial, err := LoadFile(path)
	require.NoError(t, err)
	idx := NewIndex(initial)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, os.WriteFile(path, []byte("[[center"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	Watch(ctx, path, 10*time.Millisecond, idx, nil)
	assert.Len(t, idx.Centers(), 2)
}
