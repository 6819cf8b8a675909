package session

import "sync"

// Store maps chat ids to sessions and serializes all access per chat: while
// one event for a chat is being handled, any other event for the same chat
// blocks, but events for distinct chats proceed independently.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewStore constructs an empty in-memory session store.
func NewStore() *Store {
	return &Store{entries: make(map[int64]*entry)}
}

func (st *Store) entryFor(chatID int64) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[chatID]
	if !ok {
		e = &entry{session: Session{Mode: ModeIdle}}
		st.entries[chatID] = e
	}
	return e
}

// Acquire locks the chat's session and returns it together with a release
// function. The caller must invoke release exactly once; the session pointer
// must not be retained past release.
func (st *Store) Acquire(chatID int64) (*Session, func()) {
	e := st.entryFor(chatID)
	e.mu.Lock()
	return &e.session, e.mu.Unlock
}

// Update runs fn with exclusive access to the chat's session.
func (st *Store) Update(chatID int64, fn func(*Session)) {
	s, release := st.Acquire(chatID)
	defer release()
	fn(s)
}

// Snapshot returns a copy of the chat's current session.
func (st *Store) Snapshot(chatID int64) Session {
	s, release := st.Acquire(chatID)
	defer release()
	copied := *s
	if s.Draft != nil {
		d := *s.Draft
		copied.Draft = &d
	}
	if s.Upload != nil {
		u := *s.Upload
		copied.Upload = &u
	}
	return copied
}
