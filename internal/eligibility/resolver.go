// Package eligibility resolves a customer coordinate to the nearest active
// fulfillment center, whether it delivers there, and an ETA.
//
// A Resolver starts Idle and becomes Resolved after its first computation.
// Calculate is guarded twice: it is dropped when the last computation is
// younger than DebounceInterval, and when the coordinate moved no more than
// MinMoveMeters from the last computed one. ForceCalculate skips both guards.
package eligibility

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/zone"
)

type Config struct {
	DebounceInterval    time.Duration
	MinMoveMeters       float64
	BasePrepMinutes     float64
	TravelSpeedKmPerMin float64
	MinETAMinutes       int
}

func DefaultConfig() Config {
	return Config{
		DebounceInterval:    500 * time.Millisecond,
		MinMoveMeters:       10,
		BasePrepMinutes:     5,
		TravelSpeedKmPerMin: 0.4,
		MinETAMinutes:       10,
	}
}

// ETA is the delivery estimate in whole minutes for a serviceable distance.
func (c Config) ETA(distanceKm float64) int {
	minutes := c.BasePrepMinutes
	if c.TravelSpeedKmPerMin > 0 {
		minutes += distanceKm / c.TravelSpeedKmPerMin
	}
	return max(c.MinETAMinutes, int(math.Ceil(minutes)))
}

type Status int

const (
	Idle Status = iota
	Resolved
)

func (s Status) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "idle"
}

// Result is one computation. Center is only meaningful when HasCenter is
// set; with no active center the result is not serviceable.
type Result struct {
	Center      zone.Center    `json:"center"`
	HasCenter   bool           `json:"has_center"`
	DistanceKm  float64        `json:"distance_km"`
	Serviceable bool           `json:"serviceable"`
	ETAMinutes  int            `json:"eta_minutes"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	ComputedAt  time.Time      `json:"computed_at"`
}

// Locator finds the nearest active center. *zone.Index satisfies it.
type Locator interface {
	Nearest(coord geo.Coordinate) (zone.Center, float64, bool)
}

// Recorder counts outcomes; *metrics.EngineMetrics satisfies it.
type Recorder interface {
	EligibilityOutcome(outcome string)
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.rec = rec }
}

type Resolver struct {
	cfg     Config
	centers Locator
	now     func() time.Time
	log     *zap.Logger
	rec     Recorder

	mu     sync.Mutex
	status Status
	last   Result

	// pending trailing calculation; gen invalidates timers that already fired
	timer *time.Timer
	gen   uint64

	subsMu   sync.Mutex
	subsNext int
	subs     map[int]func(Result)
}

func NewResolver(centers Locator, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:     cfg,
		centers: centers,
		now:     time.Now,
		log:     zap.NewNop(),
		subs:    make(map[int]func(Result)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Current returns the last result; ok is false while Idle.
func (r *Resolver) Current() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.status == Resolved
}

func (r *Resolver) Subscribe(fn func(Result)) (cancel func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id := r.subsNext
	r.subsNext++
	r.subs[id] = fn
	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Resolver) notify(res Result) {
	r.subsMu.Lock()
	fns := make([]func(Result), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subsMu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}

func (r *Resolver) record(outcome string) {
	if r.rec != nil {
		r.rec.EligibilityOutcome(outcome)
	}
}

// Calculate recomputes eligibility for coord unless a guard drops the call.
// It returns the current result and whether a computation happened.
func (r *Resolver) Calculate(coord geo.Coordinate) (Result, bool) {
	return r.calculate(coord, false)
}

// ForceCalculate recomputes regardless of the debounce guards.
func (r *Resolver) ForceCalculate(coord geo.Coordinate) Result {
	res, _ := r.calculate(coord, true)
	return res
}

func (r *Resolver) calculate(coord geo.Coordinate, force bool) (Result, bool) {
	if !coord.Valid() {
		r.log.Debug("eligibility: invalid coordinate dropped",
			zap.Float64("lat", coord.Lat), zap.Float64("lon", coord.Lon))
		r.record("invalid")
		res, _ := r.Current()
		return res, false
	}

	r.mu.Lock()
	now := r.now()
	if !force && r.status == Resolved {
		if now.Sub(r.last.ComputedAt) < r.cfg.DebounceInterval {
			res := r.last
			r.mu.Unlock()
			r.record("debounced_time")
			return res, false
		}
		if geo.DistanceMeters(coord, r.last.Coordinate) <= r.cfg.MinMoveMeters {
			res := r.last
			r.mu.Unlock()
			r.record("debounced_distance")
			return res, false
		}
	}
	res := r.resolve(coord, now)
	r.last = res
	r.status = Resolved
	r.mu.Unlock()

	switch {
	case !res.HasCenter:
		r.record("no_center")
	case res.Serviceable:
		r.record("serviceable")
	default:
		r.record("unserviceable")
	}
	r.log.Debug("eligibility resolved",
		zap.String("center", res.Center.ID),
		zap.Float64("distance_km", res.DistanceKm),
		zap.Bool("serviceable", res.Serviceable),
		zap.Int("eta_minutes", res.ETAMinutes),
		zap.Bool("forced", force))
	r.notify(res)
	return res, true
}

func (r *Resolver) resolve(coord geo.Coordinate, now time.Time) Result {
	res := Result{Coordinate: coord, ComputedAt: now}
	center, km, ok := r.centers.Nearest(coord)
	if !ok {
		return res
	}
	res.Center = center
	res.HasCenter = true
	res.DistanceKm = km
	res.Serviceable = center.Covers(km)
	if res.Serviceable {
		res.ETAMinutes = r.cfg.ETA(km)
	}
	return res
}

// Schedule runs Calculate(coord) once DebounceInterval has passed without a
// newer Schedule call. Each call supersedes the pending one.
func (r *Resolver) Schedule(coord geo.Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.cfg.DebounceInterval, func() {
		r.mu.Lock()
		current := r.gen == gen
		if current {
			r.timer = nil
		}
		r.mu.Unlock()
		if current {
			r.Calculate(coord)
		}
	})
}

// Stop drops any pending scheduled calculation.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}
