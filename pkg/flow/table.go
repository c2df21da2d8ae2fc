package flow

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 32

// entry owns one session. mu serialises turns for the session; touched
// is readable without mu so the sweeper never waits on a turn.
type entry struct {
	mu      sync.Mutex
	sc      *SessionContext
	touched atomic.Int64
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// sessionTable is a sharded map of session id to entry. Shard locks guard
// membership only; session state is guarded by the entry lock.
type sessionTable struct {
	shards []*shard
}

func newSessionTable(n int) *sessionTable {
	if n <= 0 {
		n = defaultShards
	}
	t := &sessionTable{shards: make([]*shard, n)}
	for i := range t.shards {
		t.shards[i] = &shard{sessions: make(map[string]*entry)}
	}
	return t
}

func (t *sessionTable) shardFor(id string) *shard {
	return t.shards[xxhash.Sum64String(id)%uint64(len(t.shards))]
}

func (t *sessionTable) get(id string) (*entry, bool) {
	s := t.shardFor(id)
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	return e, ok
}

// getOrCreate returns the entry for id, creating it with create when
// absent. The touch stamp is refreshed under the shard lock so a
// concurrent sweep cannot remove an entry a turn is about to use.
func (t *sessionTable) getOrCreate(id string, now int64, create func() *SessionContext) (*entry, bool) {
	s := t.shardFor(id)

	s.mu.RLock()
	e, ok := s.sessions[id]
	if ok {
		e.touched.Store(now)
	}
	s.mu.RUnlock()
	if ok {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.touched.Store(now)
		return e, false
	}
	e = &entry{sc: create()}
	e.touched.Store(now)
	s.sessions[id] = e
	return e, true
}

// removeIfStale deletes id when its touch stamp is still older than cutoff.
func (t *sessionTable) removeIfStale(id string, cutoff int64) bool {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.touched.Load() >= cutoff {
		return false
	}
	delete(s.sessions, id)
	return true
}

// staleKeys snapshots the ids whose touch stamp is older than cutoff.
func (t *sessionTable) staleKeys(cutoff int64) []string {
	var ids []string
	for _, s := range t.shards {
		s.mu.RLock()
		for id, e := range s.sessions {
			if e.touched.Load() < cutoff {
				ids = append(ids, id)
			}
		}
		s.mu.RUnlock()
	}
	return ids
}

// entries snapshots every entry; callers lock each one themselves.
func (t *sessionTable) entries() []*entry {
	var out []*entry
	for _, s := range t.shards {
		s.mu.RLock()
		for _, e := range s.sessions {
			out = append(out, e)
		}
		s.mu.RUnlock()
	}
	return out
}

func (t *sessionTable) len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.sessions)
		s.mu.RUnlock()
	}
	return n
}
