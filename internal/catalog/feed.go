package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Feed is a live source of catalog snapshots. Every delivery is a complete
// replacement, never a diff.
type Feed interface {
	Subscribe(fn func(Snapshot)) (cancel func())
}

// Loader fetches the full item list from the backing store.
type Loader func(ctx context.Context) ([]Item, error)

// subscribers is a small fan-out list shared by Store and Poller.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Snapshot)
}

func (s *subscribers) add(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Snapshot))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) publish(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Store holds the latest snapshot and re-publishes replacements.
type Store struct {
	current atomic.Pointer[Snapshot]
	subs    subscribers
}

func NewStore(items []Item) *Store {
	s := &Store{}
	snap := NewSnapshot(items)
	s.current.Store(&snap)
	return s
}

func (s *Store) Current() Snapshot { return *s.current.Load() }

func (s *Store) Item(id ItemID) (Item, bool) { return s.Current().Lookup(id) }

// Replace swaps in a new snapshot built from items and notifies subscribers.
func (s *Store) Replace(items []Item) Snapshot {
	snap := NewSnapshot(items)
	s.current.Store(&snap)
	s.subs.publish(snap)
	return snap
}

func (s *Store) Subscribe(fn func(Snapshot)) func() { return s.subs.add(fn) }

// Follow replaces the store's contents on every delivery from feed.
func (s *Store) Follow(feed Feed) (cancel func()) {
	return feed.Subscribe(func(snap Snapshot) {
		s.Replace(snap.items)
	})
}

// Poller turns a Loader into a Feed by reloading on a fixed interval.
type Poller struct {
	load     Loader
	interval time.Duration
	log      *zap.Logger
	subs     subscribers
}

func NewPoller(load Loader, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{load: load, interval: interval, log: log}
}

func (p *Poller) Subscribe(fn func(Snapshot)) func() { return p.subs.add(fn) }

// Poll performs one load and publishes the result.
func (p *Poller) Poll(ctx context.Context) error {
	items, err := p.load(ctx)
	if err != nil {
		return err
	}
	p.subs.publish(NewSnapshot(items))
	return nil
}

// Run polls immediately and then on every tick until ctx is done. Load
// failures are logged and the previous snapshot stays in effect.
func (p *Poller) Run(ctx context.Context) {
	if err := p.Poll(ctx); err != nil {
		p.log.Warn("catalog poll failed", zap.Error(err))
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.log.Warn("catalog poll failed", zap.Error(err))
			}
		}
	}
}
