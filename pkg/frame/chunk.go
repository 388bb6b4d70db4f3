package frame

import (
	"context"
	"fmt"
	"io"
	"time"
)

const (
	// DefaultChunkSize is the largest single write issued for a frame.
	DefaultChunkSize = 512
	// DefaultChunkPause separates chunk writes so a slow consumer can keep up.
	DefaultChunkPause = 10 * time.Millisecond
)

// Sender writes frames to a byte stream in bounded chunks.
type Sender struct {
	w     io.Writer
	size  int
	pause time.Duration
}

// NewSender creates a Sender. Zero size or negative pause select the defaults.
func NewSender(w io.Writer, size int, pause time.Duration) *Sender {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if pause < 0 {
		pause = DefaultChunkPause
	}
	return &Sender{w: w, size: size, pause: pause}
}

// Send writes frame in one write if it fits a chunk, otherwise in successive chunks with a
// pause between them. The pause is interrupted when ctx is cancelled.
func (s *Sender) Send(ctx context.Context, frame []byte) error {
	if len(frame) <= s.size {
		return s.write(frame)
	}

	for off := 0; off < len(frame); off += s.size {
		end := min(off+s.size, len(frame))
		if err := s.write(frame[off:end]); err != nil {
			return err
		}
		if end == len(frame) || s.pause == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pause):
		}
	}
	return nil
}

func (s *Sender) write(p []byte) error {
	for len(p) > 0 {
		n, err := s.w.Write(p)
		if err != nil {
			return fmt.Errorf("failed to write frame chunk: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("failed to write frame chunk: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// WriteChunked sends frame to w with the default chunk size and pause.
func WriteChunked(ctx context.Context, w io.Writer, frame []byte) error {
	return NewSender(w, DefaultChunkSize, DefaultChunkPause).Send(ctx, frame)
}
