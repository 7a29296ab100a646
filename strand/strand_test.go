package strand

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrandSerializesConcurrentRun(t *testing.T) {
	s := New()
	var active int
	var maxActive int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestStrandTryRunFailsWhenHeld(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	go s.Run(func() {
		close(started)
		<-release
	})
	<-started

	ok := s.TryRun(func() {})
	assert.False(t, ok)
	close(release)
}
