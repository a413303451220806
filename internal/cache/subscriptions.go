package cache

import (
	"sort"
	"sync"
)

// Subscriptions maps rooms to the transport sessions listening on them.
// It holds transport state only; engine rooms are unaffected.
type Subscriptions struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]struct{}
	sessions map[string]map[string]struct{}
}

// NewSubscriptions creates an empty registry.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		rooms:    make(map[string]map[string]struct{}),
		sessions: make(map[string]map[string]struct{}),
	}
}

func add(m map[string]map[string]struct{}, k, v string) bool {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	if _, dup := set[v]; dup {
		return false
	}
	set[v] = struct{}{}
	return true
}

func remove(m map[string]map[string]struct{}, k, v string) bool {
	set, ok := m[k]
	if !ok {
		return false
	}
	if _, ok := set[v]; !ok {
		return false
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
	return true
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Join subscribes session to room. It returns false if it already was.
func (s *Subscriptions) Join(room, session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add(s.rooms, room, session) {
		return false
	}
	add(s.sessions, session, room)
	return true
}

// Leave unsubscribes session from room. It returns false if it was not subscribed.
func (s *Subscriptions) Leave(room, session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !remove(s.rooms, room, session) {
		return false
	}
	remove(s.sessions, session, room)
	return true
}

// LeaveAll drops every subscription of session and returns the rooms it left.
func (s *Subscriptions) LeaveAll(session string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := keys(s.sessions[session])
	for _, room := range rooms {
		remove(s.rooms, room, session)
	}
	delete(s.sessions, session)
	return rooms
}

// Members returns the sessions subscribed to room, sorted.
func (s *Subscriptions) Members(room string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keys(s.rooms[room])
}

// Rooms returns the rooms session is subscribed to, sorted.
func (s *Subscriptions) Rooms(session string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keys(s.sessions[session])
}

// Count returns the number of sessions subscribed to room.
func (s *Subscriptions) Count(room string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}

// Reset clears all subscriptions.
func (s *Subscriptions) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]map[string]struct{})
	s.sessions = make(map[string]map[string]struct{})
}
