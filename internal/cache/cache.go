// Package cache keeps recently extracted page results so that a website
// shared by several establishments is fetched once per TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/contacts"
)

// PageCache stores extraction results keyed by canonical URL.
type PageCache interface {
	Get(ctx context.Context, url string) (contacts.Result, bool, error)
	Set(ctx context.Context, url string, res contacts.Result, ttl time.Duration) error
}

// New returns the cache named by kind: "memory", "redis" or "none".
func New(kind string, ro RedisOptions) (PageCache, error) {
	switch kind {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ro), nil
	case "none":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("cache: unknown kind %q", kind)
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (contacts.Result, bool, error) {
	return contacts.Result{}, false, nil
}

func (Nop) Set(context.Context, string, contacts.Result, time.Duration) error { return nil }

type memoryEntry struct {
	res     contacts.Result
	expires time.Time
}

// Memory is an in-process PageCache. Expired entries are dropped on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, url string) (contacts.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[url]
	if !ok {
		return contacts.Result{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, url)
		return contacts.Result{}, false, nil
	}
	return e.res, true, nil
}

func (m *Memory) Set(_ context.Context, url string, res contacts.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[url] = memoryEntry{res: res, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
