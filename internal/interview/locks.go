package interview

import "sync"

// sessionLocks hands out one mutex per session id so resolve/submit
// sequences for the same session are serialized within the process. The
// cursor compare-and-swap in the store is the cross-process guard; this
// keeps in-process callers from burning evaluator calls on writes that
// would be rejected anyway.
//
// Mutexes are never released; the map grows with the number of distinct
// sessions served by this process.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sessionLocks) get(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	return m
}
