package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/chewxy/math32"

	"github.com/itohio/gothd/pkg/record"
)

// Frame layout (little-endian):
//
//	0-3:    Header ("PICO")
//	4-7:    Rate (uint32, Hz)
//	8-9:    SampleCount N (uint16)
//	10-:    N x int16 samples
//	        HarmonicCount M (uint16)
//	        M x (float32 frequency, float32 amplitude)
//	        RMS (float32)
//	        THD (float32)
//	        CRC-32 IEEE over Rate..THD (uint32)
const (
	// Header marks the start of every frame.
	Header = "PICO"
	// HeaderSize is the size of the marker in bytes.
	HeaderSize = len(Header)

	fixedSize    = HeaderSize + 4 + 2 // header + rate + sample count
	countSize    = 2
	harmonicSize = 8
	trailerSize  = 4 + 4 + 4 // rms + thd + crc

	// MinSize is the size of a frame without samples and harmonics.
	MinSize = fixedSize + countSize + trailerSize
	// MaxSamples is the largest sample count the wire format can express.
	MaxSamples = math.MaxUint16

	// DefaultFullScale is the voltage mapped to the int16 full-scale value.
	DefaultFullScale = 3.3
	// QuantizationLimit is the largest magnitude of a quantized sample.
	QuantizationLimit = 32767
)

var (
	// ErrIncomplete means more bytes are needed before the frame can be decoded.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrBadHeader means the bytes do not start with the frame marker.
	ErrBadHeader = errors.New("invalid frame header")
	// ErrChecksumMismatch means the CRC-32 field does not match the payload.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	// ErrTooManyHarmonics means the harmonic count exceeds record.MaxHarmonics.
	ErrTooManyHarmonics = errors.New("too many harmonics")
	// ErrTooManySamples means the record cannot be expressed on the wire.
	ErrTooManySamples = errors.New("too many samples")
)

// Codec converts records to frames and back.
type Codec struct {
	FullScale float64 // Voltage mapped to QuantizationLimit
}

// DefaultCodec uses DefaultFullScale.
var DefaultCodec = Codec{FullScale: DefaultFullScale}

// Encode serializes rec with DefaultCodec.
func Encode(rec record.Record) ([]byte, error) {
	return DefaultCodec.Encode(rec)
}

// Decode parses one frame at the start of b with DefaultCodec.
func Decode(b []byte) (record.Record, int, error) {
	return DefaultCodec.Decode(b)
}

// Size returns the encoded size of a frame with n samples and m harmonics.
func Size(n, m int) int {
	return fixedSize + 2*n + countSize + harmonicSize*m + trailerSize
}

// Checksum computes the frame checksum over payload.
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Encode serializes rec into a new frame.
func (c Codec) Encode(rec record.Record) ([]byte, error) {
	n := len(rec.Samples)
	m := len(rec.Harmonics)
	if n > MaxSamples {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManySamples, n, MaxSamples)
	}
	if m > record.MaxHarmonics {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyHarmonics, m, record.MaxHarmonics)
	}

	buf := make([]byte, 0, Size(n, m))
	buf = append(buf, Header...)
	buf = binary.LittleEndian.AppendUint32(buf, rec.Rate)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(n))
	for _, v := range rec.Samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(Quantize(v, c.fullScale())))
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(m))
	for _, h := range rec.Harmonics {
		buf = appendFloat32(buf, h.Frequency)
		buf = appendFloat32(buf, h.Amplitude)
	}
	buf = appendFloat32(buf, rec.RMS)
	buf = appendFloat32(buf, rec.THD)
	buf = binary.LittleEndian.AppendUint32(buf, Checksum(buf[HeaderSize:]))

	return buf, nil
}

// Length returns the total size of the frame starting at b, reading only the count fields.
// b must start with the header. It returns ErrIncomplete while the count fields are not
// yet buffered.
func Length(b []byte) (int, error) {
	if len(b) < fixedSize {
		return 0, ErrIncomplete
	}
	n := int(binary.LittleEndian.Uint16(b[HeaderSize+4:]))
	countAt := fixedSize + 2*n
	if len(b) < countAt+countSize {
		return 0, ErrIncomplete
	}
	m := int(binary.LittleEndian.Uint16(b[countAt:]))
	if m > record.MaxHarmonics {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyHarmonics, m, record.MaxHarmonics)
	}
	return Size(n, m), nil
}

// SampleCount returns the sample count field of the frame starting at b.
func SampleCount(b []byte) (int, error) {
	if len(b) < fixedSize {
		return 0, ErrIncomplete
	}
	return int(binary.LittleEndian.Uint16(b[HeaderSize+4:])), nil
}

// Decode parses the frame at the start of b and returns the record and the number of
// bytes the frame occupies. Decode never blocks and never reads past the frame.
func (c Codec) Decode(b []byte) (record.Record, int, error) {
	if len(b) < HeaderSize {
		return record.Record{}, 0, ErrIncomplete
	}
	if string(b[:HeaderSize]) != Header {
		return record.Record{}, 0, ErrBadHeader
	}
	size, err := Length(b)
	if err != nil {
		return record.Record{}, 0, err
	}
	if len(b) < size {
		return record.Record{}, 0, ErrIncomplete
	}

	crcAt := size - 4
	want := binary.LittleEndian.Uint32(b[crcAt:])
	if got := Checksum(b[HeaderSize:crcAt]); got != want {
		return record.Record{}, size, fmt.Errorf("%w: got %08x, want %08x", ErrChecksumMismatch, got, want)
	}

	fs := c.fullScale()
	off := HeaderSize
	rec := record.Record{Rate: binary.LittleEndian.Uint32(b[off:])}
	off += 4
	n := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	rec.Samples = make([]float64, n)
	for i := range rec.Samples {
		rec.Samples[i] = Dequantize(int16(binary.LittleEndian.Uint16(b[off:])), fs)
		off += 2
	}
	m := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	rec.Harmonics = make([]record.Harmonic, m)
	for i := range rec.Harmonics {
		rec.Harmonics[i] = record.Harmonic{
			Frequency: readFloat32(b[off:]),
			Amplitude: readFloat32(b[off+4:]),
		}
		off += harmonicSize
	}
	rec.RMS = readFloat32(b[off:])
	rec.THD = readFloat32(b[off+4:])

	return rec, size, nil
}

func (c Codec) fullScale() float64 {
	if c.FullScale <= 0 {
		return DefaultFullScale
	}
	return c.FullScale
}

// Quantize scales v so that fullScale maps to QuantizationLimit, rounding and clamping
// to [-QuantizationLimit, QuantizationLimit].
func Quantize(v, fullScale float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	q := math.Round(v / fullScale * QuantizationLimit)
	if q > QuantizationLimit {
		q = QuantizationLimit
	} else if q < -QuantizationLimit {
		q = -QuantizationLimit
	}
	return int16(q)
}

// Dequantize is the inverse of Quantize for unclamped values.
func Dequantize(q int16, fullScale float64) float64 {
	return float64(q) * fullScale / QuantizationLimit
}

func appendFloat32(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint32(b, math32.Float32bits(float32(v)))
}

func readFloat32(b []byte) float64 {
	return float64(math32.Float32frombits(binary.LittleEndian.Uint32(b)))
}
