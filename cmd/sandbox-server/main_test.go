package main

import (
	"testing"
	"time"
)

func newTestServer() *sandboxServer {
	return &sandboxServer{
		maxSessions: 8,
		idleTimeout: 30 * time.Minute,
		sessions:    make(map[string]*sandboxSession),
		startTime:   time.Now(),
	}
}

// A reap pass must not wait behind a session whose mutex is held by an
// in-flight execute; if it did, it would hold s.mu for the remainder of
// the execution and block session creation and lookup.
func TestReapOnce_SkipsBusySessionWithoutBlocking(t *testing.T) {
	srv := newTestServer()
	sess := &sandboxSession{id: "sbx_busy", dir: t.TempDir()}
	sess.touch()
	srv.sessions[sess.id] = sess

	sess.mu.Lock()
	defer sess.mu.Unlock()

	done := make(chan struct{})
	go func() {
		srv.reapOnce(time.Now())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reap pass blocked behind a busy session")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.sessions[sess.id]; !ok {
		t.Error("recently used session was reaped")
	}
}

func TestReapOnce_RemovesIdleSession(t *testing.T) {
	srv := newTestServer()
	srv.idleTimeout = time.Minute
	sess := &sandboxSession{id: "sbx_idle", dir: t.TempDir()}
	sess.lastUsed.Store(time.Now().Add(-time.Hour).UnixNano())
	srv.sessions[sess.id] = sess

	srv.reapOnce(time.Now())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.sessions) != 0 {
		t.Errorf("idle session not reaped, %d sessions remain", len(srv.sessions))
	}
}

func TestReapOnce_KeepsFreshSession(t *testing.T) {
	srv := newTestServer()
	sess := &sandboxSession{id: "sbx_fresh", dir: t.TempDir()}
	sess.touch()
	srv.sessions[sess.id] = sess

	srv.reapOnce(time.Now())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.sessions[sess.id]; !ok {
		t.Error("fresh session was reaped")
	}
}
