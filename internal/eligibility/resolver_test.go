package eligibility

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/zone"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) EligibilityOutcome(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[o]++
}

var (
	origin   = geo.Coordinate{Lat: 0, Lon: 0}
	nearby   = geo.Coordinate{Lat: 0, Lon: 0.03}    // ~3.34 km east
	far      = geo.Coordinate{Lat: 0, Lon: 0.1}     // ~11.1 km east
	jittered = geo.Coordinate{Lat: 0, Lon: 0.00005} // ~5.6 m
)

func testIndex() *zone.Index {
	return zone.NewIndex([]zone.Center{
		{ID: "hub", Name: "Hub", Location: origin, RadiusKm: 5, Active: true},
	})
}

func TestConfig_ETA(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		km   float64
		want int
	}{
		{0, 10},   // floored at the minimum
		{2, 10},   // 5 + 5 exactly
		{2.1, 11}, // 5 + 5.25, ceiled
		{3.33585, 14},
		{10, 30},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, cfg.ETA(tt.km), "ETA(%v)", tt.km)
	}
}

func TestResolver_StartsIdle(t *testing.T) {
	r := NewResolver(testIndex(), DefaultConfig())
	_, ok := r.Current()
	assert.False(t, ok)
	assert.Equal(t, Idle, r.Status())
}

func TestCalculate_FirstCallResolves(t *testing.T) {
	clk := newFakeClock()
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(clk.Now))

	res, computed := r.Calculate(nearby)
	require.True(t, computed)
	assert.Equal(t, Resolved, r.Status())
	assert.True(t, res.HasCenter)
	assert.Equal(t, "hub", res.Center.ID)
	assert.InDelta(t, 3.336, res.DistanceKm, 0.001)
	assert.True(t, res.Serviceable)
	assert.Equal(t, 14, res.ETAMinutes)
	assert.Equal(t, clk.Now(), res.ComputedAt)
}

func TestCalculate_OutsideRadius(t *testing.T) {
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(newFakeClock().Now))

	res, computed := r.Calculate(far)
	require.True(t, computed)
	assert.True(t, res.HasCenter)
	assert.False(t, res.Serviceable)
	assert.Equal(t, 0, res.ETAMinutes)
}

func TestCalculate_NoActiveCenters(t *testing.T) {
	idx := zone.NewIndex([]zone.Center{{ID: "closed", Location: origin, RadiusKm: 50}})
	r := NewResolver(idx, DefaultConfig())

	res := r.ForceCalculate(origin)
	assert.False(t, res.HasCenter)
	assert.False(t, res.Serviceable)
	assert.Equal(t, 0, res.ETAMinutes)
}

func TestCalculate_DebouncedWithinInterval(t *testing.T) {
	clk := newFakeClock()
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(clk.Now))

	first, _ := r.Calculate(origin)

	clk.Advance(200 * time.Millisecond)
	res, computed := r.Calculate(far)
	assert.False(t, computed, "second call inside 500ms is dropped")
	assert.Equal(t, first, res)
	cur, _ := r.Current()
	assert.Equal(t, origin, cur.Coordinate)

	clk.Advance(300 * time.Millisecond)
	res, computed = r.Calculate(far)
	assert.True(t, computed, "exactly 500ms later is allowed")
	assert.Equal(t, far, res.Coordinate)
}

func TestCalculate_DroppedOnJitter(t *testing.T) {
	clk := newFakeClock()
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(clk.Now))
	r.Calculate(origin)

	clk.Advance(5 * time.Second)
	_, computed := r.Calculate(jittered)
	assert.False(t, computed)

	_, computed = r.Calculate(nearby)
	assert.True(t, computed)
}

func TestForceCalculate_BypassesGuards(t *testing.T) {
	clk := newFakeClock()
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(clk.Now))
	r.Calculate(origin)

	res := r.ForceCalculate(jittered)
	assert.Equal(t, jittered, res.Coordinate)

	res = r.ForceCalculate(far)
	assert.Equal(t, far, res.Coordinate)
	assert.False(t, res.Serviceable)
}

func TestCalculate_InvalidCoordinateIgnored(t *testing.T) {
	r := NewResolver(testIndex(), DefaultConfig())
	_, computed := r.Calculate(geo.Coordinate{Lat: 100})
	assert.False(t, computed)
	assert.Equal(t, Idle, r.Status())
}

func TestCalculate_SeesReplacedCenters(t *testing.T) {
	clk := newFakeClock()
	idx := testIndex()
	r := NewResolver(idx, DefaultConfig(), WithClock(clk.Now))

	res, _ := r.Calculate(far)
	assert.False(t, res.Serviceable)

	idx.Replace([]zone.Center{{ID: "east", Location: far, RadiusKm: 1, Active: true}})
	res = r.ForceCalculate(far)
	assert.Equal(t, "east", res.Center.ID)
	assert.True(t, res.Serviceable)
	assert.Equal(t, 10, res.ETAMinutes)
}

func TestSubscribe_OnlyComputedResults(t *testing.T) {
	clk := newFakeClock()
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(clk.Now))

	var got []geo.Coordinate
	cancel := r.Subscribe(func(res Result) { got = append(got, res.Coordinate) })

	r.Calculate(origin)
	r.Calculate(far) // debounced
	clk.Advance(time.Second)
	r.Calculate(far)

	assert.Equal(t, []geo.Coordinate{origin, far}, got)

	cancel()
	r.ForceCalculate(nearby)
	assert.Len(t, got, 2)
}

func TestRecorder_CountsOutcomes(t *testing.T) {
	clk := newFakeClock()
	rec := &countingRecorder{}
	r := NewResolver(testIndex(), DefaultConfig(), WithClock(clk.Now), WithRecorder(rec))

	r.Calculate(origin)
	r.Calculate(far)
	clk.Advance(time.Second)
	r.Calculate(jittered)
	r.Calculate(far)

	assert.Equal(t, map[string]int{
		"serviceable":        1,
		"debounced_time":     1,
		"debounced_distance": 1,
		"unserviceable":      1,
	}, rec.outcomes)
}

func TestSchedule_LastCallWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceInterval = 30 * time.Millisecond
	r := NewResolver(testIndex(), cfg)

	var computed atomic.Int32
	r.Subscribe(func(Result) { computed.Add(1) })

	r.Schedule(far)
	r.Schedule(origin)
	r.Schedule(nearby)

	assert.Eventually(t, func() bool {
		res, ok := r.Current()
		return ok && res.Coordinate == nearby
	}, time.Second, 5*time.Millisecond)

	time.Sleep(3 * cfg.DebounceInterval)
	assert.Equal(t, int32(1), computed.Load())
}

func TestStop_CancelsPending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceInterval = 20 * time.Millisecond
	r := NewResolver(testIndex(), cfg)

	r.Schedule(origin)
	r.Stop()

	time.Sleep(5 * cfg.DebounceInterval)
	assert.Equal(t, Idle, r.Status())
}

func TestCalculate_ConcurrentCallers(t *testing.T) {
	r := NewResolver(testIndex(), DefaultConfig())

	var wg sync.WaitGroup
	var computed atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Calculate(nearby); ok {
				computed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), computed.Load(), "only the first call gets past the guards")
}
