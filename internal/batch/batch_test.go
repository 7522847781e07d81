package batch

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryCounts(t *testing.T) {
	var s Summary
	s.Succeed("a")
	s.Succeed("b")
	s.Skip("c", "no overlapping files")
	s.Fail("d", errors.New("boom"))

	succeeded, skipped, failed := s.Counts()
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, failed)

	failures := s.Failures()
	assert.Len(t, failures, 1)
	assert.Equal(t, "d", failures[0].ID)
	assert.Equal(t, "boom", failures[0].Reason)
}

func TestSummaryConcurrentRecording(t *testing.T) {
	var s Summary
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Succeed("item")
		}()
	}
	wg.Wait()

	succeeded, _, _ := s.Counts()
	assert.Equal(t, 100, succeeded)
}
