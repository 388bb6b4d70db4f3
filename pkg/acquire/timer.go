package acquire

import (
	"sync"
	"time"
)

// Timer invokes tick periodically on its own goroutine.
// The returned stop function blocks until the tick goroutine has exited and may be called
// more than once.
type Timer interface {
	Start(period time.Duration, tick func()) (stop func())
}

// TickerTimer is a Timer backed by time.Ticker. The schedule is anchored to the start time:
// when the ticker falls behind, every owed tick is delivered on the next wakeup, so the
// number of ticks tracks elapsed/period even when the ticker resolution is coarser than
// period.
type TickerTimer struct{}

var _ Timer = TickerTimer{}

// Start implements Timer.
func (TickerTimer) Start(period time.Duration, tick func()) func() {
	if period <= 0 {
		period = time.Microsecond
	}
	quit := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		start := time.Now()
		t := time.NewTicker(period)
		defer t.Stop()

		var delivered int64
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				owed := int64(time.Since(start) / period)
				for ; delivered < owed; delivered++ {
					tick()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		<-exited
	}
}
