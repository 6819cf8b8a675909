package submission

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutOverwritesPrevious(t *testing.T) {
	q := NewQueue()
	q.Put(Submission{ChatID: 7, FileName: "old.pdf", FileID: "f1"})
	q.Put(Submission{ChatID: 7, FileName: "new.pdf", FileID: "f2"})

	sub, ok := q.Get(7)
	require.True(t, ok)
	assert.Equal(t, "new.pdf", sub.FileName)
	assert.Equal(t, "f2", sub.FileID)
	assert.Equal(t, 1, q.Len())
}

func TestResolveDeletesOnSuccess(t *testing.T) {
	q := NewQueue()
	q.Put(Submission{ChatID: 7, FileName: "a.pdf"})

	found, err := q.Resolve(7, func(Submission) error { return nil })
	require.NoError(t, err)
	assert.True(t, found)

	_, ok := q.Get(7)
	assert.False(t, ok)
}

func TestResolveRetainsOnFailure(t *testing.T) {
	q := NewQueue()
	q.Put(Submission{ChatID: 7, FileName: "a.pdf"})

	wantErr := errors.New("upload failed")
	found, err := q.Resolve(7, func(Submission) error { return wantErr })
	assert.True(t, found)
	require.ErrorIs(t, err, wantErr)

	// still there; a second attempt can succeed
	found, err = q.Resolve(7, func(Submission) error { return nil })
	require.NoError(t, err)
	assert.True(t, found)
	_, ok := q.Get(7)
	assert.False(t, ok)
}

func TestResolveAbsentTarget(t *testing.T) {
	q := NewQueue()
	called := false
	found, err := q.Resolve(42, func(Submission) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, called)
}

func TestRemoveAbsentTarget(t *testing.T) {
	q := NewQueue()
	_, ok := q.Remove(42)
	assert.False(t, ok)
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	q := NewQueue()
	q.Put(Submission{ChatID: 7, FileName: "a.pdf"})

	var published atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := q.Resolve(7, func(Submission) error {
				published.Add(1)
				return nil
			})
			if found {
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), published.Load())
}

func TestResolveAndRemoveRace(t *testing.T) {
	// Approve and reject racing on the same target: exactly one side wins.
	for i := 0; i < 50; i++ {
		q := NewQueue()
		q.Put(Submission{ChatID: 7})

		var approved, rejected atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			found, _ := q.Resolve(7, func(Submission) error { return nil })
			if found {
				approved.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, ok := q.Remove(7); ok {
				rejected.Add(1)
			}
		}()
		wg.Wait()

		assert.Equal(t, int32(1), approved.Load()+rejected.Load())
	}
}

func TestExpire(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.clock = func() time.Time { return now }

	q.Put(Submission{ChatID: 1, FileName: "stale.pdf"})
	now = now.Add(3 * time.Hour)
	q.Put(Submission{ChatID: 2, FileName: "fresh.pdf"})

	expired := q.Expire(time.Hour)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale.pdf", expired[0].FileName)

	_, ok := q.Get(1)
	assert.False(t, ok)
	_, ok = q.Get(2)
	assert.True(t, ok)
}

func TestExpireDisabled(t *testing.T) {
	q := NewQueue()
	q.Put(Submission{ChatID: 1, ReceivedAt: time.Now().Add(-24 * time.Hour)})
	assert.Nil(t, q.Expire(0))
	assert.Equal(t, 1, q.Len())
}
