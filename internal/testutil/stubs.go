package testutil

import (
	"context"
	"sync"

	"github.com/roach88/ariadne/internal/provenance"
)

// StaticVCS reports a fixed revision and counts how often it was asked.
type StaticVCS struct {
	Rev provenance.Revision
	OK  bool

	mu    sync.Mutex
	calls int
}

// NewStaticVCS returns a VCS that always reports hash and message.
func NewStaticVCS(hash, message string) *StaticVCS {
	return &StaticVCS{Rev: provenance.Revision{Hash: hash, Message: message}, OK: true}
}

func (s *StaticVCS) Name() string { return "static" }

func (s *StaticVCS) Revision(context.Context) (provenance.Revision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.Rev, s.OK
}

// Calls returns the number of Revision calls.
func (s *StaticVCS) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// StaticSource returns the same source text for every caller and records
// the skip values it was asked for.
type StaticSource struct {
	Text string

	mu    sync.Mutex
	skips []int
}

func (s *StaticSource) CallerSource(skip int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skips = append(s.skips, skip)
	return s.Text
}

// Skips returns the skip arguments seen so far.
func (s *StaticSource) Skips() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.skips...)
}
