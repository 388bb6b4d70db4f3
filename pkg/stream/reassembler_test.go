package stream

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/itohio/gothd/pkg/frame"
	"github.com/itohio/gothd/pkg/record"
)

func testRecord(rate uint32, n int, f1 float64) record.Record {
	rec := record.Record{
		Rate:    rate,
		Samples: make([]float64, n),
		Harmonics: []record.Harmonic{
			{Frequency: f1, Amplitude: 1.0},
			{Frequency: 3 * f1, Amplitude: 0.3},
		},
		RMS: 0.74,
		THD: 30.0,
	}
	for i := range rec.Samples {
		rec.Samples[i] = float64(i%64)/32 - 1
	}
	return rec
}

// encoded returns the frame for rec and the record a decoder produces from it.
func encoded(t *testing.T, rec record.Record) ([]byte, record.Record) {
	t.Helper()
	data, err := frame.Encode(rec)
	require.NoError(t, err)
	want, _, err := frame.Decode(data)
	require.NoError(t, err)
	return data, want
}

func TestReassembler_SingleFrame(t *testing.T) {
	data, want := encoded(t, testRecord(1024, 128, 50))

	r := New()
	got := r.Feed(data)

	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
	assert.Equal(t, Searching, r.State())
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, uint64(1), r.Stats().Frames)
}

func TestReassembler_BackToBackFrames(t *testing.T) {
	a, wantA := encoded(t, testRecord(1024, 64, 50))
	b, wantB := encoded(t, testRecord(2048, 32, 60))

	r := New()
	got := r.Feed(append(bytes.Clone(a), b...))

	require.Len(t, got, 2)
	assert.Equal(t, wantA, got[0])
	assert.Equal(t, wantB, got[1])
}

func TestReassembler_TornReadsAtEveryBoundary(t *testing.T) {
	data, want := encoded(t, testRecord(1024, 40, 50))

	for split := 0; split <= len(data); split++ {
		r := New()
		got := r.Feed(data[:split])
		got = append(got, r.Feed(data[split:])...)

		require.Len(t, got, 1, "split at %d", split)
		assert.Equal(t, want, got[0], "split at %d", split)
	}
}

func TestReassembler_ByteByByte(t *testing.T) {
	data, want := encoded(t, testRecord(1024, 100, 50))

	r := New()
	var got []record.Record
	for i := range data {
		got = append(got, r.Feed(data[i:i+1])...)
		if i < len(data)-1 {
			assert.Empty(t, got, "record emitted early at byte %d", i)
		}
	}

	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}

func TestReassembler_RandomChunks(t *testing.T) {
	var stream []byte
	var want []record.Record
	for i := range 5 {
		data, rec := encoded(t, testRecord(uint32(1000+i), 200+i*50, float64(50+i)))
		stream = append(stream, data...)
		want = append(want, rec)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := range 20 {
		r := New()
		var got []record.Record
		for off := 0; off < len(stream); {
			n := 1 + rng.Intn(700)
			end := min(off+n, len(stream))
			got = append(got, r.Feed(stream[off:end])...)
			off = end
		}
		assert.Equal(t, want, got, "trial %d", trial)
	}
}

func TestReassembler_StateProgression(t *testing.T) {
	data, _ := encoded(t, testRecord(1024, 10, 50))

	r := New()
	r.Feed([]byte("xxPI"))
	assert.Equal(t, Searching, r.State())

	r.Feed([]byte("CO"))
	assert.Equal(t, HeaderRead, r.State())
	assert.Equal(t, uint64(2), r.Stats().Discarded)

	r = New()
	r.Feed(data[:12])
	assert.Equal(t, HeaderRead, r.State(), "harmonic count not yet buffered")

	r = New()
	r.Feed(data[:len(data)-1])
	assert.Equal(t, AwaitingBody, r.State())

	got := r.Feed(data[len(data)-1:])
	assert.Len(t, got, 1)
	assert.Equal(t, Searching, r.State())
}

func TestReassembler_CorruptedThenValid(t *testing.T) {
	bad, _ := encoded(t, testRecord(1024, 64, 50))
	good, want := encoded(t, testRecord(2048, 64, 60))

	// Corrupt the sample region with a copy of the marker.
	copy(bad[30:], frame.Header)

	stream := append(bytes.Clone(bad), good...)

	core, logs := observer.New(zapcore.DebugLevel)
	r := New(WithLogger(zap.New(core)))
	got := r.Feed(stream)

	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
	assert.Equal(t, uint64(1), r.Stats().ChecksumErrors)
	assert.Equal(t, uint64(1), r.Stats().Frames)
	assert.Equal(t, 1, logs.FilterMessage("dropping frame candidate").Len())
}

func TestReassembler_CorruptedThenValid_TornReads(t *testing.T) {
	bad, _ := encoded(t, testRecord(1024, 64, 50))
	good, want := encoded(t, testRecord(2048, 64, 60))
	copy(bad[40:], frame.Header)
	bad[len(bad)-6] ^= 0x55

	stream := append([]byte("noise PI"), bad...)
	stream = append(stream, good...)

	for split := 0; split <= len(stream); split += 7 {
		r := New()
		got := r.Feed(stream[:split])
		got = append(got, r.Feed(stream[split:])...)

		require.Len(t, got, 1, "split at %d", split)
		assert.Equal(t, want, got[0], "split at %d", split)
	}
}

func TestReassembler_GarbageIsBounded(t *testing.T) {
	r := New()
	for range 100 {
		r.Feed(bytes.Repeat([]byte{0x00, 'P', 'I'}, 100))
	}
	assert.LessOrEqual(t, r.Buffered(), frame.HeaderSize-1)
	assert.Equal(t, Searching, r.State())
}

func TestReassembler_NilLogger(t *testing.T) {
	data, want := encoded(t, testRecord(1024, 16, 50))
	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-1] ^= 0xFF

	r := New(WithLogger(nil))
	got := r.Feed(append(corrupt, data...))
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
	assert.Equal(t, uint64(1), r.Stats().ChecksumErrors)
}

func TestReassembler_RejectsImplausibleHeaders(t *testing.T) {
	good, want := encoded(t, testRecord(1024, 16, 50))

	t.Run("too many samples", func(t *testing.T) {
		fake := []byte(frame.Header)
		fake = binary.LittleEndian.AppendUint32(fake, 1024)
		fake = binary.LittleEndian.AppendUint16(fake, 60000)

		r := New(WithMaxSamples(4096))
		got := r.Feed(append(fake, good...))

		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
		assert.Equal(t, uint64(1), r.Stats().RejectedHeaders)
	})

	t.Run("too many harmonics", func(t *testing.T) {
		fake := []byte(frame.Header)
		fake = binary.LittleEndian.AppendUint32(fake, 1024)
		fake = binary.LittleEndian.AppendUint16(fake, 0)
		fake = binary.LittleEndian.AppendUint16(fake, 500)

		r := New()
		got := r.Feed(append(fake, good...))

		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
		assert.Equal(t, uint64(1), r.Stats().RejectedHeaders)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "searching", Searching.String())
	assert.Equal(t, "header_read", HeaderRead.String())
	assert.Equal(t, "awaiting_body", AwaitingBody.String())
	assert.Equal(t, "validating", Validating.String())
	assert.Equal(t, "unknown", State(42).String())
}
