package app

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignatureSet remembers processed transaction signatures for a retention window.
type SignatureSet interface {
	// MarkIfNew records sig and reports whether it had not been seen before.
	MarkIfNew(ctx context.Context, sig string) (bool, error)
	Size() int
}

// MemorySignatureSet is an in-process SignatureSet.
type MemorySignatureSet struct {
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemorySignatureSet(retention time.Duration) *MemorySignatureSet {
	return &MemorySignatureSet{
		retention: retention,
		now:       time.Now,
		seen:      make(map[string]time.Time),
	}
}

func (s *MemorySignatureSet) MarkIfNew(_ context.Context, sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if _, ok := s.seen[sig]; ok {
		return false, nil
	}
	s.seen[sig] = now
	return true, nil
}

func (s *MemorySignatureSet) pruneLocked(now time.Time) {
	for sig, at := range s.seen {
		if now.Sub(at) > s.retention {
			delete(s.seen, sig)
		}
	}
}

func (s *MemorySignatureSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// setNXer is the slice of the redis client the set needs.
type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisSignatureSet shares processed signatures between replicas through
// SET NX with an expiry equal to the retention window.
type RedisSignatureSet struct {
	client    setNXer
	prefix    string
	retention time.Duration

	mu    sync.Mutex
	marks int
}

func NewRedisSignatureSet(client setNXer, prefix string, retention time.Duration) *RedisSignatureSet {
	return &RedisSignatureSet{
		client:    client,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *RedisSignatureSet) MarkIfNew(ctx context.Context, sig string) (bool, error) {
	added, err := s.client.SetNX(ctx, s.prefix+sig, 1, s.retention).Result()
	if err != nil {
		return false, err
	}
	if added {
		s.mu.Lock()
		s.marks++
		s.mu.Unlock()
	}
	return added, nil
}

// Size returns the number of signatures this process has marked.
func (s *RedisSignatureSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks
}
