package compositor

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/roach88/ledcore/internal/ir"
)

// Frame is an immutable composed frame buffer.
type Frame struct {
	Seq    int64    `json:"seq"` // engine.frame that produced it
	Pixels []ir.RGB `json:"pixels"`
	Hash   string   `json:"hash"`
}

// NewFrame copies pixels into a new frame and computes its hash.
func NewFrame(seq int64, pixels []ir.RGB) *Frame {
	px := make([]ir.RGB, len(pixels))
	copy(px, pixels)
	return &Frame{Seq: seq, Pixels: px, Hash: HashPixels(px)}
}

// Encode returns the frame's canonical byte form: each channel as
// little-endian IEEE-754 float64 bits, R G B per pixel.
func Encode(pixels []ir.RGB) []byte {
	buf := make([]byte, 0, len(pixels)*24)
	for _, p := range pixels {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.R))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.G))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.B))
	}
	return buf
}

// HashPixels returns the domain-separated SHA-256 of Encode(pixels).
func HashPixels(pixels []ir.RGB) string {
	return ir.FrameDigest(Encode(pixels))
}

// Nonzero counts pixels with any nonzero channel.
func (f *Frame) Nonzero() int {
	n := 0
	for _, p := range f.Pixels {
		if !p.IsZero() {
			n++
		}
	}
	return n
}

// Publisher hands composed frames from the tick goroutine to readers.
// Frames are published whole via one atomic pointer swap; a reader sees
// either the previous frame or the next, never a mix.
type Publisher struct {
	cur atomic.Pointer[Frame]
}

// Publish makes f the current frame. f must not be mutated afterwards.
func (p *Publisher) Publish(f *Frame) {
	p.cur.Store(f)
}

// Load returns the current frame, or nil before the first publish.
// It verifies the frame hash and fails with TornFrameViolation on mismatch.
func (p *Publisher) Load() (*Frame, error) {
	f := p.cur.Load()
	if f == nil {
		return nil, nil
	}
	if got := HashPixels(f.Pixels); got != f.Hash {
		return nil, ir.NewError(ir.ErrCodeTornFrame, "frame", "seq %d hash %s does not match contents %s", f.Seq, f.Hash, got)
	}
	return f, nil
}
