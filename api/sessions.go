package api

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/DachengChen/paiViz/agent"
)

// managedSession pairs a session with the mutex that serializes its
// turns. A second chat request while one is in flight gets a 409
// instead of queueing behind a slow completion call.
type managedSession struct {
	sess *agent.Session
	mu   sync.Mutex
}

// sessionManager owns the live sessions. A session idle past the TTL is
// evicted and its history discarded; every hit refreshes the clock.
type sessionManager struct {
	cache *ttlcache.Cache[string, *managedSession]
}

func newSessionManager(ttl time.Duration) *sessionManager {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *managedSession](ttl),
	)
	go cache.Start()
	return &sessionManager{cache: cache}
}

func (m *sessionManager) add(sess *agent.Session) *managedSession {
	ms := &managedSession{sess: sess}
	m.cache.Set(sess.ID, ms, ttlcache.DefaultTTL)
	return ms
}

func (m *sessionManager) get(id string) (*managedSession, bool) {
	item := m.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *sessionManager) delete(id string) bool {
	if m.cache.Get(id) == nil {
		return false
	}
	m.cache.Delete(id)
	return true
}

func (m *sessionManager) sessions() []*agent.Session {
	items := m.cache.Items()
	out := make([]*agent.Session, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value().sess)
	}
	return out
}

func (m *sessionManager) stop() {
	m.cache.Stop()
}
