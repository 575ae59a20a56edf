package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	recs []Record
}

func (s *memStore) FetchPending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if r.SentAt == nil {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for i := range s.recs {
		if s.recs[i].ID == id {
			s.recs[i].SentAt = &now
		}
	}
	return nil
}

func (s *memStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.recs {
		if r.SentAt == nil {
			n++
		}
	}
	return n
}

type memPublisher struct {
	mu     sync.Mutex
	keys   []string
	failOn string
}

func (p *memPublisher) Publish(_ context.Context, _ string, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key == p.failOn {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	return nil
}

func records(keys ...string) []Record {
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = Record{ID: int64(i + 1), EventID: "e-" + k, Topic: "orders", Key: k, Payload: []byte(`{}`)}
	}
	return out
}

func TestRelay_RunOnce_InOrderAndMarks(t *testing.T) {
	store := &memStore{recs: records("a", "b", "c")}
	pub := &memPublisher{}
	r := &Relay{Store: store, Publisher: pub, BatchSize: 2}

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, pub.keys)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.pending())
}

func TestRelay_RunOnce_StopsAtFailure(t *testing.T) {
	store := &memStore{recs: records("a", "b", "c")}
	pub := &memPublisher{failOn: "b"}
	r := &Relay{Store: store, Publisher: pub}

	n, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, pub.keys, "c is not shipped ahead of b")
	assert.Equal(t, 2, store.pending())
}

func TestRelay_Run_DrainsUntilCancelled(t *testing.T) {
	store := &memStore{recs: records("a", "b")}
	r := &Relay{Store: store, Publisher: &memPublisher{}, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
