// Package session owns per-conversation state: the append-only message
// history, the execution environment handle, the set of installed packages,
// and the artifact sink. A session survives across runs so multi-turn
// conversations keep their interpreter state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/runtime"
)

// Session is one conversation's state. All methods are safe for concurrent
// use, though the controller serializes runs per session.
type Session struct {
	ID        string
	CreatedAt time.Time

	env  runtime.Environment
	sink *artifacts.Sink

	mu        sync.RWMutex
	messages  []api.Message
	installed map[string]struct{}
	lastUsed  time.Time

	closeOnce sync.Once
	closeErr  error
}

// New creates a session bound to the given environment and artifact sink.
func New(id string, env runtime.Environment, sink *artifacts.Sink) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		env:       env,
		sink:      sink,
		installed: make(map[string]struct{}),
		lastUsed:  now,
	}
}

// Environment returns the session's execution environment.
func (s *Session) Environment() runtime.Environment {
	return s.env
}

// Sink returns the session's artifact sink.
func (s *Session) Sink() *artifacts.Sink {
	return s.sink
}

// Append adds a message to the history, assigning an ID if the message has
// none. History is append-only; existing entries are never mutated.
func (s *Session) Append(msg api.Message) api.Message {
	if msg.ID == "" {
		msg.ID = api.NewMessageID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.lastUsed = time.Now()
	return msg
}

// Messages returns a copy of the history.
func (s *Session) Messages() []api.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// IsInstalled reports whether a package was already installed this session.
func (s *Session) IsInstalled(pkg string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.installed[pkg]
	return ok
}

// RecordInstalled marks a package as installed for the rest of the session.
func (s *Session) RecordInstalled(pkg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[pkg] = struct{}{}
}

// Reset discards the environment's interpreter state together with the
// installed-package set. Packages live inside the environment, so dropping
// one without the other would let later installs be skipped against a
// fresh interpreter.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.installed = make(map[string]struct{})
	s.lastUsed = time.Now()
	s.mu.Unlock()

	if s.env != nil {
		return s.env.Reset(ctx)
	}
	return nil
}

// LastUsed returns when the session last appended a message.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// Close releases the environment. Safe to call multiple times; the
// environment is torn down exactly once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.env != nil {
			s.closeErr = s.env.Close(ctx)
		}
	})
	return s.closeErr
}
