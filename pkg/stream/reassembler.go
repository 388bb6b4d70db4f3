package stream

import (
	"bytes"
	"errors"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/frame"
	"github.com/itohio/gothd/pkg/logging"
	"github.com/itohio/gothd/pkg/record"
)

// DefaultMaxSamples bounds the sample count accepted from a frame header.
// Larger counts are treated as a corrupted header instead of waiting for the body.
const DefaultMaxSamples = 8192

// State is the position of the reassembler in the current frame candidate.
type State int

const (
	// Searching scans for the frame marker.
	Searching State = iota
	// HeaderRead has a marker at offset 0 and waits for the count fields.
	HeaderRead
	// AwaitingBody knows the candidate length and waits for all of its bytes.
	AwaitingBody
	// Validating holds a complete candidate whose checksum is checked next.
	Validating
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case HeaderRead:
		return "header_read"
	case AwaitingBody:
		return "awaiting_body"
	case Validating:
		return "validating"
	default:
		return "unknown"
	}
}

// Stats counts what the reassembler did with the bytes it was fed.
type Stats struct {
	Frames          uint64 // Valid frames emitted
	ChecksumErrors  uint64 // Candidates dropped on checksum mismatch
	RejectedHeaders uint64 // Markers dropped because their count fields were implausible
	Discarded       uint64 // Bytes dropped without producing a frame
}

// Reassembler extracts frames from an unreliable byte stream.
// It is owned by a single reader; it is not safe for concurrent use.
type Reassembler struct {
	codec      frame.Codec
	maxSamples int
	logger     *zap.Logger

	buf    []byte
	state  State
	length int // candidate length, valid in AwaitingBody and Validating
	stats  Stats
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithCodec sets the codec used to decode validated candidates.
func WithCodec(c frame.Codec) Option {
	return func(r *Reassembler) {
		r.codec = c
	}
}

// WithMaxSamples sets the largest plausible sample count.
func WithMaxSamples(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.maxSamples = min(n, frame.MaxSamples)
		}
	}
}

// WithLogger sets the logger used to report discarded candidates.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reassembler) {
		r.logger = logging.OrNop(l)
	}
}

// New creates a Reassembler in the Searching state.
func New(opts ...Option) *Reassembler {
	r := &Reassembler{
		codec:      frame.DefaultCodec,
		maxSamples: DefaultMaxSamples,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed appends p to the stream and returns every record completed by it, in stream order.
// p is copied; the caller may reuse it.
func (r *Reassembler) Feed(p []byte) []record.Record {
	r.buf = append(r.buf, p...)

	var out []record.Record
	for {
		rec, ok, progressed := r.step()
		if ok {
			out = append(out, rec)
		}
		if !progressed {
			return out
		}
	}
}

// State returns the current state.
func (r *Reassembler) State() State {
	return r.state
}

// Buffered returns the number of bytes held for the current candidate.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Stats returns the counters accumulated since creation.
func (r *Reassembler) Stats() Stats {
	return r.stats
}

// step performs one transition. progressed is false when more bytes are needed.
// Every transition that returns progressed either advances the state toward Validating
// or drops bytes, so Feed terminates.
func (r *Reassembler) step() (rec record.Record, ok bool, progressed bool) {
	switch r.state {
	case Searching:
		idx := bytes.Index(r.buf, []byte(frame.Header))
		if idx < 0 {
			// Keep a tail that may hold the start of a marker split across reads.
			if keep := frame.HeaderSize - 1; len(r.buf) > keep {
				r.discard(len(r.buf) - keep)
			}
			return rec, false, false
		}
		r.discard(idx)
		r.state = HeaderRead
		return rec, false, true

	case HeaderRead:
		count, err := frame.SampleCount(r.buf)
		if err != nil {
			return rec, false, false
		}
		if count > r.maxSamples {
			r.reject("sample count out of range", zap.Int("samples", count))
			return rec, false, true
		}
		length, err := frame.Length(r.buf)
		if errors.Is(err, frame.ErrIncomplete) {
			return rec, false, false
		}
		if err != nil {
			r.reject("harmonic count out of range", zap.Error(err))
			return rec, false, true
		}
		r.length = length
		r.state = AwaitingBody
		return rec, false, true

	case AwaitingBody:
		if len(r.buf) < r.length {
			return rec, false, false
		}
		r.state = Validating
		return rec, false, true

	case Validating:
		rec, n, err := r.codec.Decode(r.buf[:r.length])
		if err != nil {
			// Drop the whole candidate so the stale marker is never matched again.
			r.stats.ChecksumErrors++
			r.logger.Debug("dropping frame candidate",
				zap.Int("length", r.length),
				zap.Error(err))
			r.discard(r.length)
			r.restart()
			return record.Record{}, false, true
		}
		r.stats.Frames++
		r.consume(n)
		r.restart()
		return rec, true, true
	}

	r.restart()
	return rec, false, true
}

// reject drops the marker of an implausible candidate and resumes the search after it.
func (r *Reassembler) reject(reason string, fields ...zap.Field) {
	r.stats.RejectedHeaders++
	r.logger.Debug("rejecting frame header", append(fields, zap.String("reason", reason))...)
	r.discard(frame.HeaderSize)
	r.restart()
}

func (r *Reassembler) restart() {
	r.state = Searching
	r.length = 0
}

func (r *Reassembler) discard(n int) {
	r.stats.Discarded += uint64(n)
	r.consume(n)
}

func (r *Reassembler) consume(n int) {
	r.buf = r.buf[n:]
	if len(r.buf) == 0 {
		r.buf = nil
	}
}
