package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaultsToIdle(t *testing.T) {
	st := NewStore()
	s := st.Snapshot(1)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Nil(t, s.Draft)
	assert.Nil(t, s.Upload)
}

func TestUpdatePersistsAcrossCalls(t *testing.T) {
	st := NewStore()
	st.Update(7, func(s *Session) {
		s.StartUpload()
		s.Upload.Course = "B.TECH"
	})

	s := st.Snapshot(7)
	require.NotNil(t, s.Upload)
	assert.Equal(t, ModeSelectingCourse, s.Mode)
	assert.Equal(t, "B.TECH", s.Upload.Course)
}

func TestStartEnrollmentDiscardsUpload(t *testing.T) {
	st := NewStore()
	st.Update(7, func(s *Session) {
		s.StartUpload()
		s.Upload.Course = "BCA"
	})
	st.Update(7, func(s *Session) {
		s.StartEnrollment()
	})

	s := st.Snapshot(7)
	assert.Equal(t, ModeEnrolling, s.Mode)
	assert.Nil(t, s.Upload)
}

func TestSnapshotIsACopy(t *testing.T) {
	st := NewStore()
	st.Update(3, func(s *Session) {
		s.Mode = ModeEnrolling
		s.Draft = &Draft{Semester: "SEM1", Course: "BCA"}
	})

	snap := st.Snapshot(3)
	snap.Draft.Semester = "SEM8"

	again := st.Snapshot(3)
	assert.Equal(t, "SEM1", again.Draft.Semester)
}

func TestAcquireSerializesSameChat(t *testing.T) {
	st := NewStore()

	s, release := st.Acquire(1)
	s.Mode = ModeEnrolling

	secondDone := make(chan Mode, 1)
	go func() {
		inner, innerRelease := st.Acquire(1)
		mode := inner.Mode
		innerRelease()
		secondDone <- mode
	}()

	select {
	case <-secondDone:
		t.Fatal("second acquire was not blocked by the first")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	assert.Equal(t, ModeEnrolling, <-secondDone)
}

func TestDistinctChatsDoNotBlock(t *testing.T) {
	st := NewStore()

	_, release := st.Acquire(1)
	defer release()

	done := make(chan struct{})
	go func() {
		st.Update(2, func(s *Session) { s.Mode = ModeAwaitingFile })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated chat blocked by a held session")
	}
}

func TestConcurrentUpdatesDistinctChats(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.Update(id, func(s *Session) {
					s.StartUpload()
					s.Upload.Course = "BCA"
					s.Reset()
				})
			}
		}(i)
	}
	wg.Wait()

	for i := int64(0); i < 50; i++ {
		assert.Equal(t, ModeIdle, st.Snapshot(i).Mode)
	}
}
