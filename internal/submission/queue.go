// Package submission holds files waiting for an admin decision. Each chat has
// at most one pending submission; a newer file from the same chat replaces the
// older one.
package submission

import (
	"sync"
	"time"
)

// Submission is a user-uploaded file pending admin approval.
type Submission struct {
	ChatID     int64
	Course     string
	Semester   string
	FolderID   string
	FileName   string
	FileID     string
	ReceivedAt time.Time
}

// Queue is a keyed holding area bridging a user's file event to a later admin
// decision. All operations touching one target's entry are mutually exclusive;
// distinct targets never block each other.
type Queue struct {
	mu    sync.Mutex
	slots map[int64]*slot
	clock func() time.Time
}

type slot struct {
	mu  sync.Mutex
	sub *Submission
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		slots: make(map[int64]*slot),
		clock: time.Now,
	}
}

func (q *Queue) slotFor(chatID int64) *slot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.slots[chatID]
	if !ok {
		s = &slot{}
		q.slots[chatID] = s
	}
	return s
}

// Put stores a submission for its chat, replacing any previous entry.
func (q *Queue) Put(sub Submission) {
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = q.clock()
	}
	s := q.slotFor(sub.ChatID)
	s.mu.Lock()
	s.sub = &sub
	s.mu.Unlock()
}

// Get returns a copy of the pending submission for a target, if any.
func (q *Queue) Get(target int64) (Submission, bool) {
	s := q.slotFor(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return Submission{}, false
	}
	return *s.sub, true
}

// Resolve runs fn against the target's pending submission while holding that
// target's lock. The entry is deleted only when fn returns nil, which makes
// removal the serialization point: of two racing resolutions, at most one
// observes the entry. It reports whether an entry existed, and fn's error.
func (q *Queue) Resolve(target int64, fn func(Submission) error) (bool, error) {
	s := q.slotFor(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return false, nil
	}
	if err := fn(*s.sub); err != nil {
		// entry retained; the decision can be retried
		return true, err
	}
	s.sub = nil
	return true, nil
}

// Remove deletes the target's entry unconditionally, returning it if present.
func (q *Queue) Remove(target int64) (Submission, bool) {
	s := q.slotFor(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return Submission{}, false
	}
	sub := *s.sub
	s.sub = nil
	return sub, true
}

// Len reports how many submissions are currently pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	slots := make([]*slot, 0, len(q.slots))
	for _, s := range q.slots {
		slots = append(slots, s)
	}
	q.mu.Unlock()

	n := 0
	for _, s := range slots {
		s.mu.Lock()
		if s.sub != nil {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Expire removes and returns every submission older than maxAge. A maxAge of
// zero or less disables expiry and returns nothing.
func (q *Queue) Expire(maxAge time.Duration) []Submission {
	if maxAge <= 0 {
		return nil
	}
	cutoff := q.clock().Add(-maxAge)

	q.mu.Lock()
	slots := make([]*slot, 0, len(q.slots))
	for _, s := range q.slots {
		slots = append(slots, s)
	}
	q.mu.Unlock()

	var expired []Submission
	for _, s := range slots {
		s.mu.Lock()
		if s.sub != nil && s.sub.ReceivedAt.Before(cutoff) {
			expired = append(expired, *s.sub)
			s.sub = nil
		}
		s.mu.Unlock()
	}
	return expired
}
