package ownership

import (
	"net"
	"testing"

	"github.com/chirp-im/chirp/internal/transport"
)

func newTestSession(t *testing.T) transport.Session {
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return transport.NewTCPSession(server, nil, nil)
}

func TestLocalMapSetEvictsPrevious(t *testing.T) {
	m := NewLocalMap()
	s1 := newTestSession(t)
	s2 := newTestSession(t)

	if prev := m.Set("alice", s1); prev != nil {
		t.Fatalf("expected no previous session on first Set")
	}
	prev := m.Set("alice", s2)
	if prev != s1 {
		t.Fatalf("expected eviction to return s1")
	}
	got, ok := m.Get("alice")
	if !ok || got != s2 {
		t.Fatalf("expected current session to be s2")
	}
}

func TestLocalMapRemoveSessionStale(t *testing.T) {
	m := NewLocalMap()
	s1 := newTestSession(t)
	s2 := newTestSession(t)

	m.Set("bob", s1)
	m.Set("bob", s2) // s1 is now stale

	if _, ok := m.RemoveSession(s1); ok {
		t.Fatalf("expected stale session removal to report not-found")
	}
	if got, ok := m.Get("bob"); !ok || got != s2 {
		t.Fatalf("expected bob's session to remain s2")
	}

	userID, ok := m.RemoveSession(s2)
	if !ok || userID != "bob" {
		t.Fatalf("expected RemoveSession(s2) to find bob")
	}
	if _, ok := m.Get("bob"); ok {
		t.Fatalf("expected bob to be gone after removing current session")
	}
}
