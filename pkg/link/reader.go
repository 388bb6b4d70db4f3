package link

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/record"
	"github.com/itohio/gothd/pkg/stream"
)

// reader owns the byte source and the reassembler of one connection.
// Records are published on a channel of capacity one, replacing any unconsumed record.
type reader struct {
	records  chan record.Record
	reasm    *stream.Reassembler
	readSize int
	logger   *zap.Logger

	started   bool
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	err   error
	stats Stats
}

func newReader(o options) *reader {
	return &reader{
		records: make(chan record.Record, 1),
		reasm: stream.New(
			stream.WithMaxSamples(o.maxSamples),
			stream.WithLogger(o.logger)),
		readSize: o.readSize,
		logger:   o.logger,
		done:     make(chan struct{}),
	}
}

// start launches the read loop. It must be called at most once.
func (r *reader) start(ctx context.Context, src io.Reader) {
	r.started = true
	go r.run(ctx, src)
}

// wait blocks until the read loop has exited. Without a started loop it only closes the
// records channel.
func (r *reader) wait() {
	if !r.started {
		r.closeRecords()
		return
	}
	<-r.done
}

// exited reports whether the read loop has stopped.
func (r *reader) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *reader) run(ctx context.Context, src io.Reader) {
	defer close(r.done)
	defer r.closeRecords()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in link reader", zap.Any("panic", p))
			r.fail(fmt.Errorf("%w: %v", ErrReaderPanic, p))
		}
	}()

	buf := make([]byte, r.readSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := src.Read(buf)
		if n > 0 {
			r.consume(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err != io.EOF {
				r.logger.Error("error reading from link", zap.Error(err))
			}
			r.fail(fmt.Errorf("failed to read from link: %w", err))
			return
		}
	}
}

// consume feeds p to the reassembler. Stats are refreshed before any record is published so a
// consumer never sees a record the counters do not include yet.
func (r *reader) consume(p []byte) {
	recs := r.reasm.Feed(p)
	r.mu.Lock()
	r.stats.Stats = r.reasm.Stats()
	r.mu.Unlock()
	for _, rec := range recs {
		r.publish(rec)
	}
}

// publish stores rec as the newest record. The reader is the only sender, so after at most
// one eviction the send succeeds.
func (r *reader) publish(rec record.Record) {
	for {
		select {
		case r.records <- rec:
			return
		default:
		}
		select {
		case <-r.records:
			r.mu.Lock()
			r.stats.Dropped++
			r.mu.Unlock()
		default:
		}
	}
}

func (r *reader) closeRecords() {
	r.closeOnce.Do(func() { close(r.records) })
}

func (r *reader) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
