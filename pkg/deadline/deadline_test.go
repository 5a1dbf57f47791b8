package deadline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadline_StopBeforeExpiry(t *testing.T) {
	var fired int32
	d := New(50*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	d.Start()

	require.True(t, d.Stop())
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, Disarmed, d.State())
}

func TestDeadline_FiresExactlyOnce(t *testing.T) {
	var fired int32
	done := make(chan struct{})
	d := New(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
		close(done)
	})
	d.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline did not fire")
	}

	assert.False(t, d.Stop(), "Stop after expiry must report false")
	assert.False(t, d.Renew(), "Renew after expiry must report false")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, Fired, d.State())
}

func TestDeadline_RenewExtends(t *testing.T) {
	var fired int32
	d := New(60*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	d.Start()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		require.True(t, d.Renew(), "renew %d", i)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	require.True(t, d.Stop())
}

func TestDeadline_ZeroDurationNeverFires(t *testing.T) {
	var fired int32
	d := New(0, func() { atomic.AddInt32(&fired, 1) })
	d.Start()
	time.Sleep(20 * time.Millisecond)

	assert.True(t, d.Renew())
	assert.True(t, d.Stop())
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestDeadline_StopWithoutStart(t *testing.T) {
	d := New(time.Millisecond, nil)
	assert.False(t, d.Stop())
	assert.False(t, d.Renew())
}

func TestDeadline_RestartIgnoresStaleFire(t *testing.T) {
	var fired int32
	d := New(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	for i := 0; i < 10; i++ {
		d.Start()
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, d.Stop())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

// Exactly one of {completion, timeout} must win, whatever the race.
func TestDeadline_StopRacesFire(t *testing.T) {
	for _, delay := range []time.Duration{0, 500 * time.Microsecond, time.Millisecond, 2 * time.Millisecond} {
		for i := 0; i < 200; i++ {
			var timeouts, completions int32
			var wg sync.WaitGroup
			wg.Add(1)

			d := New(time.Millisecond, func() {
				atomic.AddInt32(&timeouts, 1)
				wg.Done()
			})
			d.Start()
			go func() {
				time.Sleep(delay)
				if d.Stop() {
					atomic.AddInt32(&completions, 1)
					wg.Done()
				}
			}()
			wg.Wait()
			time.Sleep(2 * time.Millisecond)

			total := atomic.LoadInt32(&timeouts) + atomic.LoadInt32(&completions)
			if total != 1 {
				t.Fatalf("delay %v iteration %d: got %d terminal events", delay, i, total)
			}
		}
	}
}
